package dialect

import (
	"strings"
	"testing"
)

func TestQuoteIdent(t *testing.T) {
	t.Parallel()

	if got := Postgres.QuoteIdent(`Acct"Id`); got != `"Acct""Id"` {
		t.Fatalf("unexpected postgres ident: %s", got)
	}
	if got := Doris.QuoteIdent("acct`id"); got != "`acct``id`" {
		t.Fatalf("unexpected doris ident: %s", got)
	}
	if got := Doris.Table("dw", "account"); got != "`dw`.`account`" {
		t.Fatalf("unexpected doris table: %s", got)
	}
	if got := Postgres.Table("", "account"); got != `"account"` {
		t.Fatalf("unexpected postgres table: %s", got)
	}
}

func TestQuoteLiteral(t *testing.T) {
	t.Parallel()

	if got := Postgres.QuoteLiteral(`O'Brien\`); got != `'O''Brien\'` {
		t.Fatalf("unexpected postgres literal: %s", got)
	}
	if got := Doris.QuoteLiteral(`O'Brien\`); got != `'O''Brien\\'` {
		t.Fatalf("unexpected doris literal: %s", got)
	}
}

func TestClassify(t *testing.T) {
	t.Parallel()

	cases := []struct {
		dialect  Dialect
		declared string
		want     LogicalType
	}{
		{Postgres, "integer", Number},
		{Postgres, "numeric(18,2)", Number},
		{Postgres, "double precision", Number},
		{Postgres, "character varying", String},
		{Postgres, "text", String},
		{Postgres, "date", Date},
		{Postgres, "timestamp without time zone", Timestamp},
		{Postgres, "interval", String},
		{Doris, "BIGINT", Number},
		{Doris, "DECIMALV3(38, 9)", Number},
		{Doris, "LARGEINT", Number},
		{Doris, "VARCHAR(64)", String},
		{Doris, "STRING", String},
		{Doris, "DATEV2", Date},
		{Doris, "DATETIMEV2(3)", Timestamp},
		{Doris, "", String},
	}
	for _, tc := range cases {
		if got := tc.dialect.Classify(tc.declared); got != tc.want {
			t.Fatalf("%s %q: got %s want %s", tc.dialect, tc.declared, got, tc.want)
		}
	}
	if !Number.Continuous() || Date.Continuous() {
		t.Fatalf("only numbers are continuous")
	}
}

func TestColumnsQuery(t *testing.T) {
	t.Parallel()

	q := Postgres.ColumnsQuery("", "account")
	for _, fragment := range []string{"information_schema.columns", "table_name = 'account'", "current_schema()", "ORDER BY ordinal_position"} {
		if !strings.Contains(q, fragment) {
			t.Fatalf("query should contain %q: %s", fragment, q)
		}
	}
	q = Doris.ColumnsQuery("dw", "account")
	if !strings.Contains(q, "table_schema = 'dw'") {
		t.Fatalf("unexpected doris columns query: %s", q)
	}
}
