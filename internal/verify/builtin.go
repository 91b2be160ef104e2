package verify

import (
	"fmt"
	"sort"
	"time"

	"example.com/udsgate/internal/odx"
)

func (e *Engine) RegisterBuiltins() {
	e.Register("CheckStructureWellFormed", CheckStructureWellFormed)
	e.Register("CheckLengthKeyOrder", CheckLengthKeyOrder)
	e.Register("CheckStaticOverlap", CheckStaticOverlap)
	e.Register("CheckByteSizeFits", CheckByteSizeFits)
	e.Register("CheckTableDefaults", CheckTableDefaults)
	e.Register("CheckTextTableLabels", CheckTextTableLabels)
	e.Register("CheckPrefixAmbiguity", CheckPrefixAmbiguity)
	e.Register("CheckServiceShapes", CheckServiceShapes)
}

// DefaultRulePack is the built-in schema lint pack.
func DefaultRulePack() RulePack {
	return RulePack{
		RulePackId: "udsgate-schema-lint",
		Version:    "1",
		Rules: []Rule{
			{RuleId: "SCH-001", Name: "structure well formed", Severity: ERROR,
				CheckFunc: "CheckStructureWellFormed", Message: "structure fails validation"},
			{RuleId: "SCH-002", Name: "length key precedes governed field", Severity: ERROR,
				CheckFunc: "CheckLengthKeyOrder", Message: "length key declared after the field it governs"},
			{RuleId: "SCH-003", Name: "static placement overlap", Severity: WARN,
				CheckFunc: "CheckStaticOverlap", Message: "parameters overlap in the coded buffer"},
			{RuleId: "SCH-004", Name: "byte size fits content", Severity: ERROR,
				CheckFunc: "CheckByteSizeFits", Message: "declared byte size is smaller than the static content"},
			{RuleId: "SCH-005", Name: "table default rows", Severity: INFO,
				CheckFunc: "CheckTableDefaults", Message: "table has no default row"},
			{RuleId: "SCH-006", Name: "text table label bijection", Severity: WARN,
				CheckFunc: "CheckTextTableLabels", Message: "text table labels are not unique"},
			{RuleId: "SCH-007", Name: "dispatch prefix ambiguity", Severity: WARN,
				CheckFunc: "CheckPrefixAmbiguity", Message: "candidates share a constant prefix"},
			{RuleId: "SCH-008", Name: "service shapes", Severity: WARN,
				CheckFunc: "CheckServiceShapes", Message: "service has no coded shapes"},
		},
	}
}

func (ctx *Context) finding(rule Rule, msg string) Diagnostic {
	return Diagnostic{
		Ts:       time.Now(),
		Schema:   ctx.Schema.Name,
		RuleId:   rule.RuleId,
		Severity: rule.Severity,
		Message:  msg,
		Refs:     rule.Refs,
	}
}

func sortedStructures(ctx *Context) []*odx.Structure {
	names := make([]string, 0, len(ctx.Schema.Structures))
	for name := range ctx.Schema.Structures {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]*odx.Structure, 0, len(names))
	for _, name := range names {
		out = append(out, ctx.Schema.Structures[name])
	}
	return out
}

func CheckStructureWellFormed(ctx *Context, rule Rule) ([]Diagnostic, error) {
	var diags []Diagnostic
	for _, st := range sortedStructures(ctx) {
		if err := st.Validate(); err != nil {
			d := ctx.finding(rule, err.Error())
			d.Structure = st.ShortName
			diags = append(diags, d)
		}
	}
	return diags, nil
}

// lengthKeyNameOf returns the governing length key of a parameter's
// diag-coded-type, if any.
func lengthKeyNameOf(p odx.Parameter) string {
	vp, ok := p.(*odx.ValueParameter)
	if !ok {
		return ""
	}
	dop, ok := vp.DOP.(*odx.DataObjectProperty)
	if !ok {
		return ""
	}
	if pli, ok := dop.DiagCoded.(*odx.ParamLengthInfoType); ok {
		return pli.LengthKeyName
	}
	return ""
}

func CheckLengthKeyOrder(ctx *Context, rule Rule) ([]Diagnostic, error) {
	var diags []Diagnostic
	for _, st := range sortedStructures(ctx) {
		declared := make(map[string]int, len(st.Params))
		for i, p := range st.Params {
			declared[p.Name()] = i
		}
		for i, p := range st.Params {
			key := lengthKeyNameOf(p)
			if key == "" {
				continue
			}
			keyIdx, ok := declared[key]
			if !ok {
				continue // SCH-001 reports unresolvable keys
			}
			if keyIdx > i {
				d := ctx.finding(rule, fmt.Sprintf("length key %q is declared after parameter %q", key, p.Name()))
				d.Structure = st.ShortName
				d.Parameter = p.Name()
				diags = append(diags, d)
			}
		}
	}
	return diags, nil
}

// paramStaticBits derives a parameter's fixed wire width from the
// exported variant fields, when one exists.
func paramStaticBits(p odx.Parameter) (int, bool) {
	switch tp := p.(type) {
	case *odx.CodedConstParameter:
		return tp.DiagCoded.StaticBitLength()
	case *odx.PhysicalConstParameter:
		return tp.DOP.StaticBitLength()
	case *odx.NrcConstParameter:
		return tp.DiagCoded.StaticBitLength()
	case *odx.ValueParameter:
		return tp.DOP.StaticBitLength()
	case *odx.ReservedParameter:
		return tp.BitLength, true
	case *odx.MatchingRequestParameter:
		return tp.ByteLength * 8, true
	case *odx.LengthKeyParameter:
		return tp.DOP.StaticBitLength()
	case *odx.TableKeyParameter:
		return tp.Table.KeyDOP.StaticBitLength()
	case *odx.SystemParameter:
		return tp.DOP.StaticBitLength()
	case *odx.TableStructParameter, *odx.TableEntryParameter, *odx.DynamicParameter:
		return 0, false
	}
	return 0, false
}

type byteSpan struct {
	name     string
	from, to int // bytes, to exclusive
}

// staticSpans simulates placement and returns each statically sized
// parameter's byte span. The simulation stops at the first parameter
// without a static width, since everything after it floats.
func staticSpans(st *odx.Structure) []byteSpan {
	var spans []byteSpan
	cursor := 0
	for _, p := range st.Params {
		bits, ok := paramStaticBits(p)
		if !ok {
			break
		}
		if pos, hasPos := p.BytePosition(); hasPos {
			cursor = pos
		}
		if bits == 0 {
			continue
		}
		span := (bits + p.BitPosition() + 7) / 8
		spans = append(spans, byteSpan{name: p.Name(), from: cursor, to: cursor + span})
		cursor += span
	}
	return spans
}

func CheckStaticOverlap(ctx *Context, rule Rule) ([]Diagnostic, error) {
	var diags []Diagnostic
	for _, st := range sortedStructures(ctx) {
		spans := staticSpans(st)
		for i := 0; i < len(spans); i++ {
			for j := i + 1; j < len(spans); j++ {
				a, b := spans[i], spans[j]
				if a.from < b.to && b.from < a.to && !sharesBitsDisjointly(st, a.name, b.name) {
					d := ctx.finding(rule, fmt.Sprintf("parameters %q and %q overlap in bytes %d..%d",
						a.name, b.name, max(a.from, b.from), min(a.to, b.to)))
					d.Structure = st.ShortName
					diags = append(diags, d)
				}
			}
		}
	}
	return diags, nil
}

// sharesBitsDisjointly reports whether two parameters occupy the same
// byte but disjoint bit ranges, which is legitimate sub-byte packing.
func sharesBitsDisjointly(st *odx.Structure, nameA, nameB string) bool {
	a, b := st.ParamByName(nameA), st.ParamByName(nameB)
	if a == nil || b == nil {
		return false
	}
	bitsA, okA := paramStaticBits(a)
	bitsB, okB := paramStaticBits(b)
	if !okA || !okB || bitsA > 8 || bitsB > 8 {
		return false
	}
	maskA := ((1 << bitsA) - 1) << a.BitPosition()
	maskB := ((1 << bitsB) - 1) << b.BitPosition()
	return maskA&maskB == 0
}

func CheckByteSizeFits(ctx *Context, rule Rule) ([]Diagnostic, error) {
	var diags []Diagnostic
	for _, st := range sortedStructures(ctx) {
		if st.ByteSize == nil {
			continue
		}
		need := 0
		for _, span := range staticSpans(st) {
			if span.to > need {
				need = span.to
			}
		}
		if need > *st.ByteSize {
			d := ctx.finding(rule, fmt.Sprintf("static content needs %d bytes but byteSize is %d",
				need, *st.ByteSize))
			d.Structure = st.ShortName
			diags = append(diags, d)
		}
	}
	return diags, nil
}

func CheckTableDefaults(ctx *Context, rule Rule) ([]Diagnostic, error) {
	var diags []Diagnostic
	names := make([]string, 0, len(ctx.Schema.Tables))
	for name := range ctx.Schema.Tables {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		table := ctx.Schema.Tables[name]
		if table.DefaultRow == nil {
			d := ctx.finding(rule, fmt.Sprintf("table %q rejects unmatched key values (no default row)", name))
			diags = append(diags, d)
		}
	}
	return diags, nil
}

func CheckTextTableLabels(ctx *Context, rule Rule) ([]Diagnostic, error) {
	var diags []Diagnostic
	names := make([]string, 0, len(ctx.Schema.DOPs))
	for name := range ctx.Schema.DOPs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		tt, ok := ctx.Schema.DOPs[name].Compu.(*odx.TextTableCompuMethod)
		if !ok {
			continue
		}
		seen := make(map[string]bool, len(tt.Entries))
		for _, e := range tt.Entries {
			if seen[e.Text] {
				d := ctx.finding(rule, fmt.Sprintf("dop %q declares label %q more than once", name, e.Text))
				diags = append(diags, d)
				continue
			}
			seen[e.Text] = true
		}
	}
	return diags, nil
}

// prefixKey renders the leading constant parameters of a structure as a
// comparable string. Candidates with equal keys cannot be told apart by
// the prefix filter.
func prefixKey(st *odx.Structure) string {
	key := ""
	for _, p := range st.Params {
		switch tp := p.(type) {
		case *odx.CodedConstParameter:
			bits, _ := tp.DiagCoded.StaticBitLength()
			key += fmt.Sprintf("c:%v/%d;", tp.CodedValue, bits)
		case *odx.PhysicalConstParameter:
			key += fmt.Sprintf("p:%v;", tp.PhysicalValue)
		default:
			return key
		}
	}
	return key
}

func CheckPrefixAmbiguity(ctx *Context, rule Rule) ([]Diagnostic, error) {
	var diags []Diagnostic
	for _, svc := range ctx.Schema.Services {
		byPrefix := make(map[string][]string)
		for _, st := range svc.Structures() {
			k := prefixKey(st)
			byPrefix[k] = append(byPrefix[k], st.ShortName)
		}
		keys := make([]string, 0, len(byPrefix))
		for k := range byPrefix {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			names := byPrefix[k]
			if len(names) < 2 {
				continue
			}
			d := ctx.finding(rule, fmt.Sprintf("structures %v share the same constant prefix", names))
			d.Service = svc.ShortName
			diags = append(diags, d)
		}
	}
	return diags, nil
}

func CheckServiceShapes(ctx *Context, rule Rule) ([]Diagnostic, error) {
	var diags []Diagnostic
	for _, svc := range ctx.Schema.Services {
		if len(svc.Structures()) == 0 {
			d := ctx.finding(rule, "service declares neither a request nor responses")
			d.Service = svc.ShortName
			diags = append(diags, d)
		}
	}
	return diags, nil
}
