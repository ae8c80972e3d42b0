package domain

import (
	"sort"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateAmount(t *testing.T) {
	cases := map[string]struct {
		amount  string
		wantErr bool
	}{
		"credit":          {amount: "1000.00"},
		"debit":           {amount: "-300.5"},
		"one cent":        {amount: "0.01"},
		"zero":            {amount: "0", wantErr: true},
		"negative zero":   {amount: "-0.00", wantErr: true},
		"sub-cent":        {amount: "10.005", wantErr: true},
		"trailing zeroes": {amount: "10.5000"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			err := ValidateAmount(decimal.RequireFromString(tc.amount))
			if tc.wantErr {
				require.ErrorIs(t, err, ErrInvalidAmount)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestAccountRefOrdering(t *testing.T) {
	refs := []AccountRef{
		CooperativeAccount(1),
		MemberAccount(10),
		MemberAccount(2),
		CooperativeAccount(0),
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].Less(refs[j]) })

	assert.Equal(t, []AccountRef{
		MemberAccount(2),
		MemberAccount(10),
		CooperativeAccount(0),
		CooperativeAccount(1),
	}, refs)
}

func TestParseAccountRef(t *testing.T) {
	ref, err := ParseAccountRef("coop_account:7")
	require.NoError(t, err)
	assert.Equal(t, CooperativeAccount(7), ref)
	assert.Equal(t, "coop_account:7", ref.String())

	for _, bad := range []string{"", "member_account", "member_account:x", "branch:1", "member_account:0"} {
		_, err := ParseAccountRef(bad)
		assert.ErrorIs(t, err, ErrInvalidRequest, bad)
	}
}

func TestPostingRequestValidate(t *testing.T) {
	valid := PostingRequest{
		Account:   MemberAccount(1),
		Amount:    decimal.NewFromInt(100),
		Type:      TypeSaving,
		Reference: ReferenceRef{Type: RefSaving, ID: "42"},
		CreatedBy: 9,
	}
	require.NoError(t, valid.Validate())

	noActor := valid
	noActor.CreatedBy = 0
	assert.ErrorIs(t, noActor.Validate(), ErrInvalidRequest)

	badType := valid
	badType.Type = "bonus"
	assert.ErrorIs(t, badType.Validate(), ErrInvalidRequest)

	halfRef := valid
	halfRef.Reference = ReferenceRef{Type: RefLoan}
	assert.ErrorIs(t, halfRef.Validate(), ErrInvalidRequest)

	zero := valid
	zero.Amount = decimal.Zero
	assert.ErrorIs(t, zero.Validate(), ErrInvalidAmount)

	noRef := valid
	noRef.Reference = ReferenceRef{}
	assert.NoError(t, noRef.Validate())
}

func TestIsLedgerError(t *testing.T) {
	assert.True(t, IsLedgerError(ErrAlreadyReversed))
	assert.True(t, IsLedgerError(ValidateAmount(decimal.Zero)))
	assert.False(t, IsLedgerError(assert.AnError))
	assert.False(t, IsLedgerError(nil))
}
