package models

// DraftPayload is the structured working document a filer builds up over
// multiple sessions. Every field is optional at the payload level: the
// snapshot extractor and the validators decide what is required when.
//
// Monetary amounts are whole rupees. Negative values are representable here
// so that validation, not deserialization, reports them.
type DraftPayload struct {
	Personal     PersonalInfo      `json:"personal"`
	Income       IncomeDetails     `json:"income"`
	Deductions   DeductionClaims   `json:"deductions"`
	Bank         BankDetails       `json:"bank"`
	Regime       TaxRegime         `json:"regime,omitempty"`
	Verification VerificationFlags `json:"verification"`
}

// TaxRegime selects between the two statutory computation schemes.
type TaxRegime string

const (
	RegimeOld TaxRegime = "old"
	RegimeNew TaxRegime = "new"
)

// OrDefault resolves the regime used for computation when the filer has not
// chosen one.
func (r TaxRegime) OrDefault() TaxRegime {
	if r == "" {
		return RegimeNew
	}
	return r
}

// PersonalInfo identifies the filer. Only ResidentStatus and DateOfBirth feed
// the snapshot; the rest is presentation data whose edits never invalidate a
// computation.
type PersonalInfo struct {
	FullName       string `json:"fullName,omitempty"`
	PAN            string `json:"pan,omitempty"`
	DateOfBirth    string `json:"dateOfBirth,omitempty"`
	Email          string `json:"email,omitempty"`
	Phone          string `json:"phone,omitempty"`
	Address        string `json:"address,omitempty"`
	ResidentStatus string `json:"residentStatus,omitempty"`
	SeniorCitizen  bool   `json:"seniorCitizen,omitempty"`
}

// IncomeDetails carries every income line that feeds tax computation.
type IncomeDetails struct {
	GrossSalary      int64 `json:"grossSalary,omitempty"`
	InterestIncome   int64 `json:"interestIncome,omitempty"`
	RentalIncome     int64 `json:"rentalIncome,omitempty"`
	CapitalGains     int64 `json:"capitalGains,omitempty"`
	BusinessTurnover int64 `json:"businessTurnover,omitempty"`
	BusinessExpenses int64 `json:"businessExpenses,omitempty"`
	OtherIncome      int64 `json:"otherIncome,omitempty"`
}

// Total sums all income lines before deductions.
func (i IncomeDetails) Total() int64 {
	business := i.BusinessTurnover - i.BusinessExpenses
	if business < 0 {
		business = 0
	}
	return i.GrossSalary + i.InterestIncome + i.RentalIncome + i.CapitalGains + business + i.OtherIncome
}

// DeductionClaims carries the deduction sections the filer claims under the
// old regime.
type DeductionClaims struct {
	Section80C       int64 `json:"section80C,omitempty"`
	Section80D       int64 `json:"section80D,omitempty"`
	HomeLoanInterest int64 `json:"homeLoanInterest,omitempty"`
	NPS              int64 `json:"nps,omitempty"`
	Other            int64 `json:"other,omitempty"`
}

// Total sums all claimed deductions.
func (d DeductionClaims) Total() int64 {
	return d.Section80C + d.Section80D + d.HomeLoanInterest + d.NPS + d.Other
}

// BankDetails is where a refund lands. Not material to computation.
type BankDetails struct {
	AccountNumber string `json:"accountNumber,omitempty"`
	IFSC          string `json:"ifsc,omitempty"`
	BankName      string `json:"bankName,omitempty"`
}

// VerificationFlags record third-party verification status. They feed
// confidence scoring, not the tax figures themselves.
type VerificationFlags struct {
	PANVerified   bool `json:"panVerified,omitempty"`
	BankVerified  bool `json:"bankVerified,omitempty"`
	AadhaarLinked bool `json:"aadhaarLinked,omitempty"`
}
