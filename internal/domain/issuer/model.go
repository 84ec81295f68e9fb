package issuer

import (
	"github.com/notaflow/notaflow/internal/types"
)

// Issuer represents a tax-paying entity that emits fiscal service invoices.
// It is the sole owner of the document sequence counter: NextNumber is only
// ever advanced inside the allocation transaction that authorizes a
// document, and it is monotonically non-decreasing.
type Issuer struct {
	ID                    string `db:"id" json:"id"`
	Name                  string `db:"name" json:"name"`
	CNPJ                  string `db:"cnpj" json:"cnpj"`
	MunicipalRegistration string `db:"municipal_registration" json:"municipal_registration"`
	// Series is the series identifier stamped on every document number
	// allocated for this issuer
	Series string `db:"series" json:"series"`
	// NextNumber is the last allocated document number; the next document
	// authorized for this issuer receives NextNumber+1
	NextNumber int64 `db:"next_number" json:"next_number"`
	// CertificateID references the digital certificate used to sign payloads
	CertificateID string `db:"certificate_id" json:"certificate_id"`
	// Environment selects production or homologation at the authority
	Environment types.Environment `db:"environment" json:"environment"`
	types.BaseModel
}

func (i *Issuer) Validate() error {
	if err := i.Environment.Validate(); err != nil {
		return err
	}
	return nil
}
