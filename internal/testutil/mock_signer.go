package testutil

import (
	"context"
	"fmt"

	ierr "github.com/notaflow/notaflow/internal/errors"
	"github.com/notaflow/notaflow/internal/signer"
)

var _ signer.Signer = (*MockSigner)(nil)

// MockSigner fakes the signing service. It appends an enveloped signature
// AFTER the document's closing root tag, the misplacement real signers
// produce, so callers must run signature placement normalization before
// transmitting.
type MockSigner struct {
	// Err, when set, is returned by every Sign call
	Err error
	// MissingCertificates lists certificate ids Sign rejects
	MissingCertificates []string

	SignCalls int
}

func NewMockSigner() *MockSigner {
	return &MockSigner{}
}

func (m *MockSigner) Sign(ctx context.Context, xml string, certificateID string) (string, error) {
	m.SignCalls++

	if m.Err != nil {
		return "", m.Err
	}
	for _, id := range m.MissingCertificates {
		if id == certificateID {
			return "", ierr.NewErrorf("certificate %s not found", certificateID).
				WithHint("The issuer's certificate is not registered with the signing service").
				Mark(ierr.ErrCertificate)
		}
	}

	return xml + MockSignatureXML(certificateID), nil
}

// MockSignatureXML returns the signature block the mock appends.
func MockSignatureXML(certificateID string) string {
	return fmt.Sprintf(`<Signature xmlns="http://www.w3.org/2000/09/xmldsig#"><SignedInfo/><SignatureValue>mock-%s</SignatureValue></Signature>`, certificateID)
}
