package ofx

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/Veraticus/backoffice-ledger/internal/model"
	"github.com/Veraticus/backoffice-ledger/internal/service"
	"github.com/Veraticus/backoffice-ledger/internal/testutil"
	"github.com/aclindsa/ofxgo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Sample OFX data for testing.
const sampleBankOFX = `OFXHEADER:100
DATA:OFXSGML
VERSION:102
SECURITY:NONE
ENCODING:USASCII
CHARSET:1252
COMPRESSION:NONE
OLDFILEUID:NONE
NEWFILEUID:NONE

<OFX>
<SIGNONMSGSRSV1>
<SONRS>
<STATUS>
<CODE>0
<SEVERITY>INFO
</STATUS>
<DTSERVER>20240315120000[0:GMT]
<LANGUAGE>ENG
</SONRS>
</SIGNONMSGSRSV1>
<BANKMSGSRSV1>
<STMTTRNRS>
<TRNUID>1
<STATUS>
<CODE>0
<SEVERITY>INFO
</STATUS>
<STMTRS>
<CURDEF>USD
<BANKACCTFROM>
<BANKID>123456789
<ACCTID>1234567890
<ACCTTYPE>CHECKING
</BANKACCTFROM>
<BANKTRANLIST>
<DTSTART>20240101120000[0:GMT]
<DTEND>20240131120000[0:GMT]
<STMTTRN>
<TRNTYPE>DEBIT
<DTPOSTED>20240115120000[0:GMT]
<TRNAMT>-25.50
<FITID>2024011501
<NAME>STARBUCKS STORE #1234
</STMTTRN>
<STMTTRN>
<TRNTYPE>DEBIT
<DTPOSTED>20240120120000[0:GMT]
<TRNAMT>-125.00
<FITID>2024012001
<NAME>Whole Foods Market
</STMTTRN>
<STMTTRN>
<TRNTYPE>CHECK
<DTPOSTED>20240125120000[0:GMT]
<TRNAMT>-500.00
<FITID>2024012501
<CHECKNUM>1234
<NAME>CHECK #1234
</STMTTRN>
<STMTTRN>
<TRNTYPE>DEP
<DTPOSTED>20240130120000[0:GMT]
<TRNAMT>2500.00
<FITID>2024013001
<NAME>PAYROLL
<MEMO>ACME CORP
</STMTTRN>
</BANKTRANLIST>
<LEDGERBAL>
<BALAMT>1000.00
<DTASOF>20240131120000[0:GMT]
</LEDGERBAL>
</STMTRS>
</STMTTRNRS>
</BANKMSGSRSV1>
</OFX>`

const sampleCreditCardOFX = `OFXHEADER:100
DATA:OFXSGML
VERSION:102
SECURITY:NONE
ENCODING:USASCII
CHARSET:1252
COMPRESSION:NONE
OLDFILEUID:NONE
NEWFILEUID:NONE

<OFX>
<SIGNONMSGSRSV1>
<SONRS>
<STATUS>
<CODE>0
<SEVERITY>INFO
</STATUS>
<DTSERVER>20240315120000[0:GMT]
<LANGUAGE>ENG
</SONRS>
</SIGNONMSGSRSV1>
<CREDITCARDMSGSRSV1>
<CCSTMTTRNRS>
<TRNUID>1
<STATUS>
<CODE>0
<SEVERITY>INFO
</STATUS>
<CCSTMTRS>
<CURDEF>USD
<CCACCTFROM>
<ACCTID>4111111111111111
</CCACCTFROM>
<BANKTRANLIST>
<DTSTART>20240101120000[0:GMT]
<DTEND>20240131120000[0:GMT]
<STMTTRN>
<TRNTYPE>DEBIT
<DTPOSTED>20240110120000[0:GMT]
<TRNAMT>-45.99
<FITID>CC2024011001
<NAME>AMAZON.COM*RT4Y7HG2
</STMTTRN>
<STMTTRN>
<TRNTYPE>DEBIT
<DTPOSTED>20240115120000[0:GMT]
<TRNAMT>-15.00
<FITID>CC2024011501
<NAME>NETFLIX.COM
</STMTTRN>
</BANKTRANLIST>
<LEDGERBAL>
<BALAMT>-500.00
<DTASOF>20240131120000[0:GMT]
</LEDGERBAL>
</CCSTMTRS>
</CCSTMTTRNRS>
</CREDITCARDMSGSRSV1>
</OFX>`

func TestParse(t *testing.T) {
	tests := []struct {
		name          string
		ofxData       string
		account       string
		expectedCount int
	}{
		{name: "bank statement", ofxData: sampleBankOFX, account: "1234567890", expectedCount: 4},
		{name: "credit card statement", ofxData: sampleCreditCardOFX, account: "4111111111111111", expectedCount: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			movements, err := NewLoader(false).Parse(context.Background(), strings.NewReader(tt.ofxData), 7)
			require.NoError(t, err)
			require.Len(t, movements, tt.expectedCount)

			for _, m := range movements {
				assert.Equal(t, int64(7), m.ImportRunID)
				assert.Equal(t, tt.account, m.ExternalAccountID)
				assert.Equal(t, "USD", m.Currency)
				assert.Equal(t, model.ReviewPending, m.ReviewStatus)
				assert.Equal(t, model.RefExternal, m.OperationRef.Kind)
				assert.True(t, json.Valid(m.RawPayload))
			}
		})
	}
}

func TestParse_BankMapping(t *testing.T) {
	movements, err := NewLoader(true).Parse(context.Background(), strings.NewReader(sampleBankOFX), 1)
	require.NoError(t, err)
	require.Len(t, movements, 4)

	first := movements[0]
	assert.Equal(t, model.ExternalRef(int(ofxgo.TrnTypeDebit)), first.OperationRef)
	assert.True(t, first.SignedAmount.Equal(decimal.RequireFromString("-25.50")), "got %s", first.SignedAmount)
	assert.Equal(t, "STARBUCKS STORE #1234", first.Descriptor)
	assert.Equal(t, time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC), first.CreatedAt.UTC())
	assert.Equal(t, model.ReviewApproved, first.ReviewStatus)

	var raw map[string]string
	require.NoError(t, json.Unmarshal(first.RawPayload, &raw))
	assert.Equal(t, "2024011501", raw["fitid"])
	assert.Equal(t, "DEBIT", raw["trntype"])

	check := movements[2]
	assert.Equal(t, model.ExternalRef(int(ofxgo.TrnTypeCheck)), check.OperationRef)
	require.NoError(t, json.Unmarshal(check.RawPayload, &raw))
	assert.Equal(t, "1234", raw["checknum"])

	deposit := movements[3]
	assert.Equal(t, model.ExternalRef(int(ofxgo.TrnTypeDep)), deposit.OperationRef)
	assert.True(t, deposit.SignedAmount.Equal(decimal.RequireFromString("2500")))
	assert.True(t, deposit.SignedAmount.IsPositive())
}

func TestParse_LeadingBlankLines(t *testing.T) {
	sloppy := "\n\n  " + sampleCreditCardOFX

	movements, err := NewLoader(false).Parse(context.Background(), strings.NewReader(sloppy), 1)
	require.NoError(t, err)
	assert.Len(t, movements, 2)
}

func TestParse_Invalid(t *testing.T) {
	_, err := NewLoader(false).Parse(context.Background(), strings.NewReader("not an ofx file"), 1)
	assert.Error(t, err)
}

func TestDescriptor(t *testing.T) {
	tests := []struct {
		name     string
		tx       ofxgo.Transaction
		expected string
	}{
		{name: "payee wins", tx: ofxgo.Transaction{Name: "POS 1234", Payee: &ofxgo.Payee{Name: "Corner Cafe"}}, expected: "Corner Cafe"},
		{name: "name", tx: ofxgo.Transaction{Name: "  NETFLIX.COM "}, expected: "NETFLIX.COM"},
		{name: "memo fallback", tx: ofxgo.Transaction{Memo: "wire from ACME"}, expected: "wire from ACME"},
		{name: "nothing", tx: ofxgo.Transaction{}, expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, descriptor(tt.tx))
		})
	}
}

func TestLoad_StagesAndPosts(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	db.MustCreateAccount("1234567890", "1000.00")
	run := db.MustCreateRun()

	n, err := NewLoader(true).Load(ctx, db.Storage, strings.NewReader(sampleBankOFX), run.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	runID := run.ID
	staged, err := db.Storage.GetStagingMovements(ctx, service.StagingFilter{ImportRunID: &runID})
	require.NoError(t, err)
	require.Len(t, staged, 4)
	for _, m := range staged {
		assert.Equal(t, model.ImportImported, m.ImportStatus)
		assert.Equal(t, model.ReviewApproved, m.ReviewStatus)
		assert.Equal(t, model.RefExternal, m.OperationRef.Kind)
	}
}

func TestPreprocess(t *testing.T) {
	in := "\n  <SEVERITY>Warn</SEVERITY>\n<BANKACCTFROM\n<ACCTID>1"
	assert.Equal(t, "<SEVERITY>WARN</SEVERITY>\n<BANKACCTFROM>\n<ACCTID>1", preprocess(in))
}
