package payroll

import (
	"fmt"
	"os"
	"path/filepath"
)

// Sealer encrypts archived payslips at rest. label binds the ciphertext to
// the record it belongs to.
type Sealer interface {
	Configured() bool
	Seal(plain, label []byte) ([]byte, error)
}

// PayslipArchive keeps a copy of every rendered payslip under Dir. When the
// sealer is configured only the encrypted ".pdf.enc" file is written.
type PayslipArchive struct {
	Dir    string
	Sealer Sealer
}

func NewPayslipArchive(dir string, sealer Sealer) *PayslipArchive {
	if dir == "" {
		return nil
	}
	return &PayslipArchive{Dir: dir, Sealer: sealer}
}

func (a *PayslipArchive) Save(recordID string, pdf []byte) (string, error) {
	if err := os.MkdirAll(a.Dir, 0o755); err != nil {
		return "", err
	}
	filePath := filepath.Join(a.Dir, recordID+".pdf")

	if a.Sealer != nil && a.Sealer.Configured() {
		sealed, err := a.Sealer.Seal(pdf, []byte(recordID))
		if err != nil {
			return "", fmt.Errorf("encrypt payslip: %w", err)
		}
		filePath += ".enc"
		if err := os.WriteFile(filePath, sealed, 0o600); err != nil {
			return "", err
		}
		return filePath, nil
	}

	if err := os.WriteFile(filePath, pdf, 0o600); err != nil {
		return "", err
	}
	return filePath, nil
}
