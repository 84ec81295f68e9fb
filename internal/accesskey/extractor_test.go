package accesskey

import (
	"strings"
	"testing"

	"github.com/notaflow/notaflow/internal/codec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// key44 and key50 are the two legal key lengths; key30 is too short.
var (
	key44 = strings.Repeat("12345678901", 4)
	key50 = strings.Repeat("12345", 10)
	key30 = strings.Repeat("123", 10)
)

func TestFromXMLAttribute(t *testing.T) {
	xml := `<NFSe><infNFSe Id="NFS` + key50 + `"><nNFSe>7</nNFSe></infNFSe></NFSe>`

	key, ok := FromXML(xml)
	require.True(t, ok)
	assert.Equal(t, key50, key)
}

func TestFromXMLAttribute44Digits(t *testing.T) {
	xml := `<DPS><infDPS Id="DPS` + key44 + `"/></DPS>`

	key, ok := FromXML(xml)
	require.True(t, ok)
	assert.Equal(t, key44, key)
}

func TestFromXMLElement(t *testing.T) {
	xml := `<retorno><chaveAcesso>` + key50 + `</chaveAcesso></retorno>`

	key, ok := FromXML(xml)
	require.True(t, ok)
	assert.Equal(t, key50, key)
}

func TestFromXMLElementCaseInsensitiveAndPrefixed(t *testing.T) {
	xml := `<ns:retorno><ns:ChaveAcesso> ` + key44 + ` </ns:ChaveAcesso></ns:retorno>`

	key, ok := FromXML(xml)
	require.True(t, ok)
	assert.Equal(t, key44, key)
}

func TestFromXMLBareDigitRunFallback(t *testing.T) {
	xml := `<retorno><protocolo>` + key50 + `</protocolo></retorno>`

	key, ok := FromXML(xml)
	require.True(t, ok)
	assert.Equal(t, key50, key)
}

func TestFromXMLOverlongDigitRun(t *testing.T) {
	// A 70-digit run is not a key and must not be clipped into one
	xml := `<retorno><protocolo>` + strings.Repeat("7", 70) + `</protocolo></retorno>`

	_, ok := FromXML(xml)
	assert.False(t, ok)
}

func TestFromXMLOverlongDigitRunPicksValidNeighbor(t *testing.T) {
	xml := `<retorno><hash>` + strings.Repeat("7", 70) + `</hash><chave>` + key44 + `</chave></retorno>`

	key, ok := FromXML(xml)
	require.True(t, ok)
	assert.Equal(t, key44, key)
}

func TestFromXMLAttributeOverlongDigits(t *testing.T) {
	xml := `<NFSe><infNFSe Id="NFS` + strings.Repeat("7", 70) + `"/></NFSe>`

	_, ok := FromXML(xml)
	assert.False(t, ok)
}

func TestFromXMLNoKey(t *testing.T) {
	xml := `<retorno><protocolo>` + key30 + `</protocolo></retorno>`

	_, ok := FromXML(xml)
	assert.False(t, ok)
}

func TestFromURL(t *testing.T) {
	url := "https://adn.nfse.gov.br/contribuinte/danfse?chaveAcesso=" + key50

	key, ok := FromURL(url)
	require.True(t, ok)
	assert.Equal(t, key50, key)
}

func TestFromURLShortParamName(t *testing.T) {
	url := "https://adn.nfse.gov.br/danfse?chave=" + key44 + "&x=1"

	key, ok := FromURL(url)
	require.True(t, ok)
	assert.Equal(t, key44, key)
}

func TestFromURLRejectsShortKey(t *testing.T) {
	url := "https://adn.nfse.gov.br/danfse?chaveAcesso=" + key30

	_, ok := FromURL(url)
	assert.False(t, ok)
}

func TestFromEncodedXML(t *testing.T) {
	xml := `<NFSe><infNFSe Id="NFS` + key50 + `"/></NFSe>`
	encoded, err := codec.Compress(xml)
	require.NoError(t, err)

	key, ok := FromEncodedXML(encoded)
	require.True(t, ok)
	assert.Equal(t, key50, key)
}

func TestFromEncodedXMLInvalidPayload(t *testing.T) {
	_, ok := FromEncodedXML("!!not base64!!")
	assert.False(t, ok)
}

func TestFromFieldsOrder(t *testing.T) {
	key, ok := FromFields([]Field{
		{Value: "", Kind: FieldKey},
		{Value: key50, Kind: FieldKey},
		{Value: `<r><chaveAcesso>` + key44 + `</chaveAcesso></r>`, Kind: FieldXML},
	})
	require.True(t, ok)
	assert.Equal(t, key50, key)
}

func TestFromFieldsFallsThroughInvalidKey(t *testing.T) {
	key, ok := FromFields([]Field{
		{Value: key30, Kind: FieldKey},
		{Value: `<r><chaveAcesso>` + key44 + `</chaveAcesso></r>`, Kind: FieldXML},
	})
	require.True(t, ok)
	assert.Equal(t, key44, key)
}

func TestFromFieldsURL(t *testing.T) {
	key, ok := FromFields([]Field{
		{Value: "https://adn.nfse.gov.br/danfse?chaveAcesso=" + key50, Kind: FieldURL},
	})
	require.True(t, ok)
	assert.Equal(t, key50, key)
}

func TestFromFieldsNothingFound(t *testing.T) {
	_, ok := FromFields([]Field{
		{Value: "", Kind: FieldKey},
		{Value: "<r/>", Kind: FieldXML},
	})
	assert.False(t, ok)
}

func TestIsValid(t *testing.T) {
	assert.True(t, IsValid(key44))
	assert.True(t, IsValid(key50))
	assert.False(t, IsValid(key30))
	assert.False(t, IsValid(strings.Repeat("1", 47)))
	assert.False(t, IsValid(strings.Repeat("1", 60)))
	assert.False(t, IsValid(strings.Repeat("a", 44)))
	assert.False(t, IsValid(""))
}
