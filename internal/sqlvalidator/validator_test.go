package sqlvalidator

import (
	"strings"
	"testing"

	"sqlrag.app/engine/internal/model"
)

func allowlistWith(connectionID int64, identifiers ...string) model.Allowlist {
	a := model.Allowlist{}
	for _, id := range identifiers {
		a.Add(connectionID, id)
	}
	return a
}

func TestValidate_RejectsWrites(t *testing.T) {
	allow := allowlistWith(1, "public.assets", "assets")
	res := Validate(`UPDATE public.assets SET name='x'`, allow, 1, 5)
	if res.OK {
		t.Fatalf("expected rejection")
	}
	if res.Reason != "Only SELECT/CTE are permitted." {
		t.Fatalf("unexpected reason: %q", res.Reason)
	}
}

func TestValidate_RejectsMultipleStatements(t *testing.T) {
	allow := allowlistWith(1, "public.assets", "assets")
	res := Validate(`SELECT * FROM public.assets; SELECT * FROM public.assets`, allow, 1, 5)
	if res.OK {
		t.Fatalf("expected rejection")
	}
	if res.Reason != "Multiple statements not permitted." {
		t.Fatalf("unexpected reason: %q", res.Reason)
	}
}

func TestValidate_NormalizesLimit(t *testing.T) {
	allow := allowlistWith(1, "public.assets", "assets")
	res := Validate(`SELECT * FROM public.assets LIMIT 1000`, allow, 1, 5)
	if !res.OK {
		t.Fatalf("expected acceptance, got reason: %q", res.Reason)
	}
	if !strings.Contains(res.RewrittenSQL, "LIMIT 5") {
		t.Fatalf("expected rewritten LIMIT 5, got %q", res.RewrittenSQL)
	}
}

func TestValidate_AcceptsCTE(t *testing.T) {
	allow := allowlistWith(1, "public.assets", "assets")
	res := Validate(`WITH tmp AS (SELECT id FROM public.assets) SELECT id FROM tmp`, allow, 1, 5)
	if !res.OK {
		t.Fatalf("expected acceptance, got reason: %q", res.Reason)
	}
	if !strings.HasSuffix(res.RewrittenSQL, "LIMIT 5") {
		t.Fatalf("expected LIMIT 5 appended, got %q", res.RewrittenSQL)
	}
}

func TestValidate_RejectsKeywordsCaseInsensitive(t *testing.T) {
	allow := allowlistWith(1, "public.assets")
	forbidden := []string{"insert", "Update", "DELETE", "DROP", "grant", "TRUNCATE"}
	for _, kw := range forbidden {
		sql := "SELECT * FROM public.assets WHERE 1=1 " + kw
		res := Validate(sql, allow, 1, 5)
		if res.OK {
			t.Fatalf("expected rejection for keyword %q", kw)
		}
	}
}

func TestValidate_RejectsUnallowlistedTable(t *testing.T) {
	allow := allowlistWith(1, "public.assets")
	res := Validate(`SELECT * FROM public.secrets`, allow, 1, 5)
	if res.OK {
		t.Fatalf("expected rejection")
	}
	if !strings.Contains(res.Reason, "public.secrets") {
		t.Fatalf("expected reason to name missing table, got %q", res.Reason)
	}
}

func TestValidate_CTEException_BareNameIgnored(t *testing.T) {
	allow := allowlistWith(1, "public.assets")
	// "inner_cte" is not declared anywhere in the statement, so the
	// lightweight CTE scanner does not know it, but since the statement
	// starts with WITH, an unqualified miss is tolerated.
	res := Validate(`WITH tmp AS (SELECT * FROM public.assets) SELECT * FROM tmp JOIN inner_cte ON true`, allow, 1, 5)
	if !res.OK {
		t.Fatalf("expected acceptance under bare-name CTE exception, got reason: %q", res.Reason)
	}
}

func TestValidate_RejectsForUpdate(t *testing.T) {
	allow := allowlistWith(1, "public.assets")
	res := Validate(`SELECT * FROM public.assets FOR UPDATE`, allow, 1, 5)
	if res.OK {
		t.Fatalf("expected rejection")
	}
}

func TestValidate_RejectsSensitiveFunctions(t *testing.T) {
	allow := allowlistWith(1, "public.assets")
	res := Validate(`SELECT pg_sleep(5) FROM public.assets`, allow, 1, 5)
	if res.OK {
		t.Fatalf("expected rejection")
	}
}

func TestValidate_KeepsExistingLimitUnderCap(t *testing.T) {
	allow := allowlistWith(1, "public.assets")
	res := Validate(`SELECT * FROM public.assets LIMIT 3`, allow, 1, 5)
	if !res.OK {
		t.Fatalf("expected acceptance, got reason: %q", res.Reason)
	}
	if !strings.Contains(res.RewrittenSQL, "LIMIT 3") {
		t.Fatalf("expected LIMIT 3 preserved, got %q", res.RewrittenSQL)
	}
}
