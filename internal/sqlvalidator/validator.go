// Package sqlvalidator implements the pattern-based SQL safety check
// that gates every query a Planner proposes before it reaches the
// Executor. It is deliberately not a real SQL parser: the design
// accepts false rejections over false acceptances, and a rule list
// (rather than full grammar coverage) keeps the accept/reject boundary
// auditable.
package sqlvalidator

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"sqlrag.app/engine/internal/model"
)

var (
	forbiddenKeywords = regexp.MustCompile(`(?i)\b(insert|update|delete|upsert|merge|drop|alter|create|grant|revoke|truncate|copy|execute|call)\b`)
	selectIntoPattern = regexp.MustCompile(`(?is)\bselect\b.*?\binto\b`)
	forUpdatePattern  = regexp.MustCompile(`(?i)\bfor\s+(update|share)\b`)
	sensitiveFuncs    = regexp.MustCompile(`(?i)\b(pg_read_file|pg_ls_dir|pg_sleep|dblink|lo_export|lo_import)\b`)

	fromJoinTokens = regexp.MustCompile(`(?i)\b(?:from|join)\s+([^\s,;()]+)`)
	cteNamePattern = regexp.MustCompile(`(?is)(?:\bwith\s+|\)\s*,\s*)([a-zA-Z_][a-zA-Z0-9_]*)\s+as\s*\(`)

	limitPattern = regexp.MustCompile(`(?i)\blimit\s+([^\s;]+)\s*$`)
)

// Result is the validator's verdict: either ok with the (possibly
// LIMIT-rewritten) SQL to execute, or a rejection reason.
type Result struct {
	OK           bool
	Reason       string
	RewrittenSQL string
}

// Validate runs the eight ordered rules from the statement-shape check
// through LIMIT normalisation, returning on the first violation.
func Validate(sql string, allowlist model.Allowlist, connectionID int64, maxRows int) Result {
	trimmed := strings.TrimSpace(sql)

	// Rule 1: strip one trailing semicolon; reject if another remains.
	trimmed = strings.TrimRight(trimmed, " \t\n\r")
	trimmed = strings.TrimSuffix(trimmed, ";")
	if strings.Contains(trimmed, ";") {
		return reject("Multiple statements not permitted.")
	}

	lower := strings.ToLower(strings.TrimSpace(trimmed))

	// Rule 2: must start with select or with.
	if !strings.HasPrefix(lower, "select") && !strings.HasPrefix(lower, "with") {
		return reject("Only SELECT/CTE are permitted.")
	}

	// Rule 3: forbidden write/DDL keywords anywhere in the body.
	if m := forbiddenKeywords.FindString(lower); m != "" {
		return reject(fmt.Sprintf("Statement contains a forbidden keyword: %s.", m))
	}

	// Rule 4: SELECT ... INTO ... is a write (table creation).
	if selectIntoPattern.MatchString(lower) {
		return reject("SELECT INTO is not permitted.")
	}

	// Rule 5: row locking clauses are rejected.
	if forUpdatePattern.MatchString(lower) {
		return reject("FOR UPDATE/FOR SHARE is not permitted.")
	}

	// Rule 6: sensitive function set.
	if m := sensitiveFuncs.FindString(lower); m != "" {
		return reject(fmt.Sprintf("Use of %s is not permitted.", m))
	}

	// Rule 7: table references must be allowlisted, net of CTE names.
	if reason, ok := checkAllowlist(trimmed, lower, allowlist, connectionID); !ok {
		return reject(reason)
	}

	// Rule 8: LIMIT normalisation.
	rewritten := normalizeLimit(trimmed, maxRows)

	return Result{OK: true, RewrittenSQL: rewritten}
}

func reject(reason string) Result {
	return Result{OK: false, Reason: reason}
}

func checkAllowlist(original, lower string, allowlist model.Allowlist, connectionID int64) (string, bool) {
	cteNames := make(map[string]struct{})
	for _, m := range cteNamePattern.FindAllStringSubmatch(lower, -1) {
		cteNames[strings.ToLower(m[1])] = struct{}{}
	}

	referenced := make(map[string]struct{})
	for _, m := range fromJoinTokens.FindAllStringSubmatch(original, -1) {
		ident := normalizeIdentifier(m[1])
		if ident == "" {
			continue
		}
		referenced[ident] = struct{}{}
	}

	startsWithCTE := strings.HasPrefix(lower, "with")

	var missing []string
	for ident := range referenced {
		if _, isCTE := cteNames[ident]; isCTE {
			continue
		}
		if allowlist.Contains(connectionID, ident) {
			continue
		}
		// Exception: when the statement starts with WITH, only
		// qualified (schema.table) missing references count — a bare
		// name may be an inner CTE reference the lightweight scanner
		// missed.
		if startsWithCTE && !strings.Contains(ident, ".") {
			continue
		}
		missing = append(missing, ident)
	}

	if len(missing) > 0 {
		return fmt.Sprintf("References table(s) not in the allowlist: %s.", strings.Join(missing, ", ")), false
	}
	return "", true
}

// normalizeIdentifier trims a trailing comma left by the token split,
// strips one enclosing double-quote pair, and lowercases.
func normalizeIdentifier(raw string) string {
	s := strings.TrimSuffix(raw, ",")
	if len(s) >= 2 && strings.HasPrefix(s, `"`) && strings.HasSuffix(s, `"`) {
		s = s[1 : len(s)-1]
	}
	s = strings.TrimSpace(s)
	return strings.ToLower(s)
}

func normalizeLimit(sql string, maxRows int) string {
	if m := limitPattern.FindStringSubmatch(sql); m != nil {
		valueToken := strings.ToLower(strings.TrimSpace(m[1]))
		if n, err := strconv.Atoi(valueToken); err == nil && n <= maxRows {
			return sql
		}
		// ALL, a bind parameter, or a numeric value above cap: replace.
		prefix := sql[:len(sql)-len(m[0])]
		return fmt.Sprintf("%sLIMIT %d", prefix, maxRows)
	}
	return fmt.Sprintf("%s LIMIT %d", sql, maxRows)
}
