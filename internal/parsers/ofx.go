package parsers

import (
	"regexp"
	"strconv"
	"strings"
)

// ParseOFX extracts transactions and account metadata from an OFX/QFX
// document. It works equally on XML-well-formed OFX and the older SGML
// style with unclosed tags, because extraction is tag-name based: it scans
// for `<TAG>value` occurrences terminated by a newline or the next tag,
// never builds a tree (§4.1.1).
func ParseOFX(raw string) ([]RawTransaction, AccountMeta) {
	meta := AccountMeta{Institution: "unknown"}
	if strings.TrimSpace(raw) == "" {
		return nil, meta
	}

	if id := firstTag(raw, "ACCTID"); id != "" {
		meta.AccountID = id
	}
	if typ := firstTag(raw, "ACCTTYPE"); typ != "" {
		meta.AccountType = typ
	}
	if org := firstTag(raw, "ORG"); org != "" {
		meta.Institution = org
	} else if fid := firstTag(raw, "FID"); fid != "" {
		meta.Institution = fid
	}
	if bal := firstTag(raw, "BALAMT"); bal != "" {
		if v, err := strconv.ParseFloat(bal, 64); err == nil {
			meta.Balance = &v
		}
	}
	if dtasof := firstTag(raw, "DTASOF"); dtasof != "" {
		meta.BalanceDate = normalizeOFXDate(dtasof)
	}

	var txns []RawTransaction
	for _, block := range stmtBlocks(raw) {
		amtStr := firstTag(block, "TRNAMT")
		if amtStr == "" {
			continue
		}
		amount, err := strconv.ParseFloat(amtStr, 64)
		if err != nil {
			continue
		}

		name := firstTag(block, "NAME")
		if name == "" {
			name = firstTag(block, "PAYEE")
		}
		if name == "" {
			name = "Unknown"
		}

		date := ""
		if dt := firstTag(block, "DTPOSTED"); dt != "" {
			date = normalizeOFXDate(dt)
		}

		txns = append(txns, RawTransaction{
			ID:     firstTag(block, "FITID"),
			Date:   date,
			Name:   name,
			Amount: amount,
			Type:   firstTag(block, "TRNTYPE"),
			Memo:   firstTag(block, "MEMO"),
		})
	}

	return txns, meta
}

var stmtOpenTag = regexp.MustCompile(`(?i)<STMTTRN>`)
var stmtCloseTag = regexp.MustCompile(`(?i)</STMTTRN>`)

// stmtBlocks returns the raw contents of each <STMTTRN> block. RE2 (Go's
// regexp engine) has no lookahead, so block boundaries are found by index
// scanning rather than a single pattern: each block runs from one
// <STMTTRN> to the next (or to a matching </STMTTRN> if present), which
// tolerates both XML-closed and unclosed SGML-style OFX.
func stmtBlocks(raw string) []string {
	opens := stmtOpenTag.FindAllStringIndex(raw, -1)
	if opens == nil {
		return nil
	}

	blocks := make([]string, 0, len(opens))
	for i, open := range opens {
		contentStart := open[1]
		contentEnd := len(raw)
		if i+1 < len(opens) {
			contentEnd = opens[i+1][0]
		}

		if close := stmtCloseTag.FindStringIndex(raw[contentStart:contentEnd]); close != nil {
			contentEnd = contentStart + close[0]
		}

		blocks = append(blocks, raw[contentStart:contentEnd])
	}
	return blocks
}

// firstTag returns the value following the first `<TAG>` occurrence in s,
// up to the next tag or end of line.
func firstTag(s, tag string) string {
	re := regexp.MustCompile(`(?i)<` + tag + `>([^<\r\n]*)`)
	m := re.FindStringSubmatch(s)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// normalizeOFXDate converts an OFX date (YYYYMMDD[HHMMSS][.SSS][TZ]) to
// YYYY-MM-DD. Anything shorter than 8 digits is returned unchanged.
func normalizeOFXDate(raw string) string {
	digits := raw
	for i, c := range raw {
		if c < '0' || c > '9' {
			digits = raw[:i]
			break
		}
	}
	if len(digits) < 8 {
		return raw
	}
	return digits[0:4] + "-" + digits[4:6] + "-" + digits[6:8]
}
