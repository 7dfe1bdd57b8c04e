package validation

import (
	"testing"

	"github.com/stretchr/testify/require"

	"jobboard-agent/internal/domain"
)

func TestValidate_EverySynonymNormalizesToCanonical(t *testing.T) {
	for field, table := range Synonyms {
		for canonical, spellings := range table {
			for _, s := range append([]string{canonical}, spellings...) {
				res := Validate(field, s)
				require.True(t, res.Accepted, "field=%s synonym=%q", field, s)
				require.Equal(t, canonical, res.Normalized, "field=%s synonym=%q", field, s)
				require.Equal(t, ReasonNone, res.Reason)
			}
		}
	}
}

func TestValidate_SynonymsAreCaseInsensitive(t *testing.T) {
	cases := []struct {
		field domain.Field
		raw   string
		want  string
	}{
		{domain.FieldRemotePreference, "WFH", domain.RemoteRemote},
		{domain.FieldWorkType, "FT", domain.WorkTypeFullTime},
		{domain.FieldSeniority, "Sr.", domain.SenioritySenior},
		{domain.FieldRemotePreference, "  On-Site please ", domain.RemoteOnsite},
		{domain.FieldWorkType, "I'd like a Part Time role", domain.WorkTypePartTime},
	}
	for _, tc := range cases {
		res := Validate(tc.field, tc.raw)
		require.True(t, res.Accepted, "raw=%q", tc.raw)
		require.Equal(t, tc.want, res.Normalized, "raw=%q", tc.raw)
	}
}

func TestValidate_EmptyInputs(t *testing.T) {
	for _, f := range domain.Fields {
		for _, raw := range []string{"", "   ", "\n\t"} {
			res := Validate(f, raw)
			require.False(t, res.Accepted, "field=%s raw=%q", f, raw)
			require.Equal(t, ReasonEmptyAnswer, res.Reason)
		}
	}
}

func TestValidate_UnknownField(t *testing.T) {
	res := Validate(domain.Field("favourite_color"), "blue")
	require.False(t, res.Accepted)
	require.Equal(t, ReasonUnknownField, res.Reason)
}

func TestValidate_EnumRejections(t *testing.T) {
	cases := []struct {
		field domain.Field
		raw   string
	}{
		{domain.FieldWorkType, "whatever pays"},
		{domain.FieldSeniority, "wizard"},
		{domain.FieldRemotePreference, "remote or hybrid"},
		{domain.FieldWorkType, "!!!"},
	}
	for _, tc := range cases {
		res := Validate(tc.field, tc.raw)
		require.False(t, res.Accepted, "raw=%q", tc.raw)
		require.NotEqual(t, ReasonNone, res.Reason)
	}
	require.Equal(t, ReasonUnrecognizedValue, Validate(domain.FieldSeniority, "wizard").Reason)
	require.Equal(t, ReasonUnrecognizedValue, Validate(domain.FieldRemotePreference, "remote or hybrid").Reason)
}

func TestValidate_FreeTextKeptAsIs(t *testing.T) {
	res := Validate(domain.FieldLocation, "  remote   or Boston ")
	require.True(t, res.Accepted)
	require.Equal(t, "remote or Boston", res.Normalized)

	res = Validate(domain.FieldRole, "Senior iOS AR engineer")
	require.True(t, res.Accepted)
	require.Equal(t, "Senior iOS AR engineer", res.Normalized)
}

func TestValidate_Salary(t *testing.T) {
	cases := []struct {
		raw      string
		amount   float64
		currency string
		norm     string
	}{
		{"$180k", 180000, "USD", "180000 USD"},
		{"180000", 180000, "USD", "180000 USD"},
		{"at least 180,000 a year", 180000, "USD", "180000 USD"},
		{"95.5K", 95500, "USD", "95500 USD"},
		{"€70k", 70000, "EUR", "70000 EUR"},
		{"60000 pounds", 60000, "GBP", "60000 GBP"},
		{"120000 usd", 120000, "USD", "120000 USD"},
	}
	for _, tc := range cases {
		res := Validate(domain.FieldSalaryMin, tc.raw)
		require.True(t, res.Accepted, "raw=%q", tc.raw)
		require.Equal(t, tc.amount, res.Amount, "raw=%q", tc.raw)
		require.Equal(t, tc.currency, res.Currency, "raw=%q", tc.raw)
		require.Equal(t, tc.norm, res.Normalized, "raw=%q", tc.raw)
	}
}

func TestValidate_SalaryRejections(t *testing.T) {
	for _, raw := range []string{"competitive", "lots", "0", "$0k"} {
		res := Validate(domain.FieldSalaryMin, raw)
		require.False(t, res.Accepted, "raw=%q", raw)
		require.Equal(t, ReasonUnparsableNumber, res.Reason, "raw=%q", raw)
	}
}

func TestOptions(t *testing.T) {
	require.Len(t, Options(domain.FieldSeniority), 6)
	require.Len(t, Options(domain.FieldWorkType), 3)
	require.Nil(t, Options(domain.FieldLocation))
	require.True(t, IsEnum(domain.FieldRemotePreference))
	require.False(t, IsEnum(domain.FieldNotes))
}
