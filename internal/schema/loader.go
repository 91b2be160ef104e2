package schema

import (
	"os"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"example.com/udsgate/internal/odx"
)

// File-level YAML shapes. These stay private: the resolved odx graph is
// the only thing callers see.

type fileSpec struct {
	Schema     string        `yaml:"schema"`
	DOPs       []dopSpec     `yaml:"dops"`
	Tables     []tableSpec   `yaml:"tables"`
	Structures []structSpec  `yaml:"structures"`
	Services   []serviceSpec `yaml:"services"`
}

type dopSpec struct {
	Name         string     `yaml:"name"`
	Type         string     `yaml:"type"`
	Bits         int        `yaml:"bits"`
	LengthKey    string     `yaml:"lengthKey"`
	MinLength    int        `yaml:"minLength"`
	MaxLength    int        `yaml:"maxLength"`
	Termination  string     `yaml:"termination"`
	LittleEndian bool       `yaml:"littleEndian"`
	BitMask      *uint64    `yaml:"bitMask"`
	Unit         string     `yaml:"unit"`
	Compu        *compuSpec `yaml:"compu"`
}

type compuSpec struct {
	Kind string `yaml:"kind"`

	Factor       float64  `yaml:"factor"`
	Offset       float64  `yaml:"offset"`
	Denominator  float64  `yaml:"denominator"`
	InverseValue float64  `yaml:"inverseValue"`
	InternalMin  *float64 `yaml:"internalMin"`
	InternalMax  *float64 `yaml:"internalMax"`
	MinOpen      bool     `yaml:"minOpen"`
	MaxOpen      bool     `yaml:"maxOpen"`

	Segments []compuSpec `yaml:"segments"`

	Entries         []textEntrySpec `yaml:"entries"`
	DefaultText     *string         `yaml:"defaultText"`
	DefaultInternal *uint64         `yaml:"defaultInternal"`

	Points []pointSpec `yaml:"points"`
}

type textEntrySpec struct {
	Value *uint64 `yaml:"value"`
	Lower uint64  `yaml:"lower"`
	Upper uint64  `yaml:"upper"`
	Text  string  `yaml:"text"`
}

type pointSpec struct {
	Internal float64 `yaml:"internal"`
	Physical float64 `yaml:"physical"`
}

type tableSpec struct {
	Name       string    `yaml:"name"`
	KeyDOP     string    `yaml:"keyDop"`
	Rows       []rowSpec `yaml:"rows"`
	DefaultRow string    `yaml:"defaultRow"`
}

type rowSpec struct {
	Name      string `yaml:"name"`
	Key       uint64 `yaml:"key"`
	Structure string `yaml:"structure"`
	DOP       string `yaml:"dop"`
}

type structSpec struct {
	Name     string      `yaml:"name"`
	ByteSize *int        `yaml:"byteSize"`
	Params   []paramSpec `yaml:"params"`
}

type paramSpec struct {
	Name     string `yaml:"name"`
	Kind     string `yaml:"kind"`
	Semantic string `yaml:"semantic"`
	BytePos  *int   `yaml:"bytePos"`
	BitPos   int    `yaml:"bitPos"`

	DOP  string `yaml:"dop"`
	Bits int    `yaml:"bits"`

	CodedValue    *uint64  `yaml:"codedValue"`
	CodedValues   []uint64 `yaml:"codedValues"`
	PhysicalValue any      `yaml:"physicalValue"`
	Default       any      `yaml:"default"`

	RequestBytePos int `yaml:"requestBytePos"`
	ByteLength     int `yaml:"byteLength"`

	Table    string `yaml:"table"`
	TableKey string `yaml:"tableKey"`
	Row      string `yaml:"row"`

	SysParam string `yaml:"sysParam"`

	Structure string `yaml:"structure"`
	MinItems  int    `yaml:"minItems"`
	MaxItems  int    `yaml:"maxItems"`
}

type serviceSpec struct {
	Name              string   `yaml:"name"`
	Request           string   `yaml:"request"`
	PositiveResponses []string `yaml:"positiveResponses"`
	NegativeResponses []string `yaml:"negativeResponses"`
}

// Load reads and resolves one schema file.
func Load(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read schema %s", path)
	}
	return Parse(data)
}

// Parse resolves one schema document.
func Parse(data []byte) (*Schema, error) {
	var spec fileSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, errors.Wrap(err, "parse schema yaml")
	}
	if spec.Schema == "" {
		return nil, errors.New("schema has no name")
	}

	r := &resolver{
		schema: &Schema{
			Name:           spec.Schema,
			DOPs:           make(map[string]*odx.DataObjectProperty, len(spec.DOPs)),
			Structures:     make(map[string]*odx.Structure, len(spec.Structures)),
			Tables:         make(map[string]*odx.Table, len(spec.Tables)),
			servicesByName: make(map[string]*odx.Service, len(spec.Services)),
		},
	}
	if err := r.resolve(&spec); err != nil {
		return nil, err
	}
	return r.schema, nil
}

type resolver struct {
	schema *Schema
}

// resolve runs the two phases: register arena shells for every named
// object, then fill them in so cross references land on stable
// pointers.
func (r *resolver) resolve(spec *fileSpec) error {
	s := r.schema

	for _, ds := range spec.DOPs {
		if ds.Name == "" {
			return errors.New("dop without a name")
		}
		if _, dup := s.DOPs[ds.Name]; dup {
			return errors.Errorf("duplicate dop %q", ds.Name)
		}
		s.DOPs[ds.Name] = &odx.DataObjectProperty{ShortName: ds.Name}
	}
	for _, ts := range spec.Tables {
		if ts.Name == "" {
			return errors.New("table without a name")
		}
		if _, dup := s.Tables[ts.Name]; dup {
			return errors.Errorf("duplicate table %q", ts.Name)
		}
		s.Tables[ts.Name] = &odx.Table{ShortName: ts.Name}
	}
	for _, ss := range spec.Structures {
		if ss.Name == "" {
			return errors.New("structure without a name")
		}
		if _, dup := s.Structures[ss.Name]; dup {
			return errors.Errorf("duplicate structure %q", ss.Name)
		}
		if _, clash := s.DOPs[ss.Name]; clash {
			return errors.Errorf("structure %q clashes with a dop of the same name", ss.Name)
		}
		s.Structures[ss.Name] = &odx.Structure{ShortName: ss.Name}
	}

	for _, ds := range spec.DOPs {
		if err := r.fillDOP(s.DOPs[ds.Name], &ds); err != nil {
			return errors.Wrapf(err, "dop %q", ds.Name)
		}
	}
	for _, ts := range spec.Tables {
		if err := r.fillTable(s.Tables[ts.Name], &ts); err != nil {
			return errors.Wrapf(err, "table %q", ts.Name)
		}
	}
	for _, ss := range spec.Structures {
		if err := r.fillStructure(s.Structures[ss.Name], &ss); err != nil {
			return errors.Wrapf(err, "structure %q", ss.Name)
		}
	}
	for _, ss := range spec.Structures {
		if err := s.Structures[ss.Name].Validate(); err != nil {
			return errors.Wrapf(err, "structure %q", ss.Name)
		}
	}

	for _, svc := range spec.Services {
		resolved, err := r.fillService(&svc)
		if err != nil {
			return errors.Wrapf(err, "service %q", svc.Name)
		}
		if _, dup := s.servicesByName[svc.Name]; dup {
			return errors.Errorf("duplicate service %q", svc.Name)
		}
		s.Services = append(s.Services, resolved)
		s.servicesByName[svc.Name] = resolved
	}
	if len(s.Services) == 0 {
		return errors.New("schema declares no services")
	}
	return nil
}

func dataType(name string) (odx.DataType, error) {
	switch name {
	case "uint", "":
		return odx.TypeUint, nil
	case "int":
		return odx.TypeInt, nil
	case "float32":
		return odx.TypeFloat32, nil
	case "float64":
		return odx.TypeFloat64, nil
	case "bytes":
		return odx.TypeBytes, nil
	case "string":
		return odx.TypeString, nil
	}
	return 0, errors.Errorf("unknown data type %q", name)
}

func termination(name string) (odx.Termination, error) {
	switch strings.ToLower(name) {
	case "end-of-pdu", "":
		return odx.TerminateEndOfPDU, nil
	case "zero":
		return odx.TerminateZero, nil
	case "hex-ff":
		return odx.TerminateHexFF, nil
	}
	return 0, errors.Errorf("unknown termination %q", name)
}

func (r *resolver) fillDOP(dop *odx.DataObjectProperty, ds *dopSpec) error {
	baseType, err := dataType(ds.Type)
	if err != nil {
		return err
	}

	switch {
	case ds.LengthKey != "":
		dop.DiagCoded = &odx.ParamLengthInfoType{
			Type:          baseType,
			LengthKeyName: ds.LengthKey,
			LittleEndian:  ds.LittleEndian,
		}
	case ds.MinLength > 0 || ds.Termination != "":
		term, err := termination(ds.Termination)
		if err != nil {
			return err
		}
		dop.DiagCoded = &odx.MinMaxLengthType{
			Type:        baseType,
			MinLength:   ds.MinLength,
			MaxLength:   ds.MaxLength,
			Termination: term,
		}
	default:
		if ds.Bits <= 0 {
			return errors.New("fixed-length dop needs a positive bit count")
		}
		slt := &odx.StandardLengthType{
			Type:         baseType,
			BitLength:    ds.Bits,
			LittleEndian: ds.LittleEndian,
		}
		if ds.BitMask != nil {
			slt.BitMask = *ds.BitMask
			slt.HasBitMask = true
		}
		dop.DiagCoded = slt
	}

	compu, err := buildCompu(ds.Compu, baseType)
	if err != nil {
		return err
	}
	dop.Compu = compu
	dop.Unit = ds.Unit
	return nil
}

func buildCompu(cs *compuSpec, internalType odx.DataType) (odx.CompuMethod, error) {
	if cs == nil {
		return odx.IdenticalCompuMethod{}, nil
	}
	switch strings.ToLower(cs.Kind) {
	case "identical", "":
		return odx.IdenticalCompuMethod{}, nil
	case "linear":
		seg, err := buildSegment(cs, internalType)
		if err != nil {
			return nil, err
		}
		return &odx.LinearCompuMethod{Segment: seg}, nil
	case "scale-linear":
		if len(cs.Segments) == 0 {
			return nil, errors.New("scale-linear compu needs segments")
		}
		segs := make([]*odx.LinearSegment, 0, len(cs.Segments))
		for i := range cs.Segments {
			seg, err := buildSegment(&cs.Segments[i], internalType)
			if err != nil {
				return nil, errors.Wrapf(err, "segment %d", i)
			}
			segs = append(segs, seg)
		}
		return &odx.ScaleLinearCompuMethod{Segments: segs}, nil
	case "texttable":
		if len(cs.Entries) == 0 {
			return nil, errors.New("texttable compu needs entries")
		}
		m := &odx.TextTableCompuMethod{}
		for _, e := range cs.Entries {
			lo, hi := e.Lower, e.Upper
			if e.Value != nil {
				lo, hi = *e.Value, *e.Value
			}
			if hi < lo {
				return nil, errors.Errorf("texttable entry %q has upper %d below lower %d", e.Text, hi, lo)
			}
			m.Entries = append(m.Entries, odx.TextTableEntry{Lower: lo, Upper: hi, Text: e.Text})
		}
		if cs.DefaultText != nil {
			m.DefaultText = *cs.DefaultText
			m.HasDefaultText = true
		}
		if cs.DefaultInternal != nil {
			m.DefaultInternal = *cs.DefaultInternal
			m.HasDefaultInternal = true
		}
		return m, nil
	case "tab-intp":
		if len(cs.Points) < 2 {
			return nil, errors.New("tab-intp compu needs at least two points")
		}
		m := &odx.TabIntpCompuMethod{InternalType: internalType, PhysicalType: odx.TypeFloat64}
		for _, p := range cs.Points {
			m.Points = append(m.Points, odx.TabIntpPoint{Internal: p.Internal, Physical: p.Physical})
		}
		return m, nil
	}
	return nil, errors.Errorf("unknown compu kind %q", cs.Kind)
}

func buildSegment(cs *compuSpec, internalType odx.DataType) (*odx.LinearSegment, error) {
	seg := odx.LinearSegment{
		Factor:       cs.Factor,
		Offset:       cs.Offset,
		Denominator:  cs.Denominator,
		InverseValue: cs.InverseValue,
		InternalType: internalType,
		PhysicalType: odx.TypeFloat64,
	}
	limit := func(v *float64, open bool) *odx.Limit {
		if v == nil {
			return nil
		}
		interval := odx.IntervalClosed
		if open {
			interval = odx.IntervalOpen
		}
		return &odx.Limit{Value: *v, Interval: interval}
	}
	seg.InternalLower = limit(cs.InternalMin, cs.MinOpen)
	seg.InternalUpper = limit(cs.InternalMax, cs.MaxOpen)
	if cs.Factor == 0 && cs.InverseValue == 0 {
		return nil, errors.New("linear segment with factor 0 needs an inverseValue")
	}
	return odx.NewLinearSegment(seg), nil
}

func (r *resolver) fillTable(table *odx.Table, ts *tableSpec) error {
	keyDOP, ok := r.schema.DOPs[ts.KeyDOP]
	if !ok {
		return errors.Errorf("unknown key dop %q", ts.KeyDOP)
	}
	table.KeyDOP = keyDOP

	for _, rs := range ts.Rows {
		row := &odx.TableRow{ShortName: rs.Name, Key: rs.Key}
		switch {
		case rs.Structure != "":
			st, ok := r.schema.Structures[rs.Structure]
			if !ok {
				return errors.Errorf("row %q references unknown structure %q", rs.Name, rs.Structure)
			}
			row.Structure = st
		case rs.DOP != "":
			dop, ok := r.schema.DOPs[rs.DOP]
			if !ok {
				return errors.Errorf("row %q references unknown dop %q", rs.Name, rs.DOP)
			}
			row.DOP = dop
		default:
			return errors.Errorf("row %q needs a structure or dop", rs.Name)
		}
		table.Rows = append(table.Rows, row)
	}

	if ts.DefaultRow != "" {
		def := table.RowByName(ts.DefaultRow)
		if def == nil {
			return errors.Errorf("default row %q is not a row of the table", ts.DefaultRow)
		}
		table.DefaultRow = def
	}
	return nil
}

// resolveDOP looks a name up as a plain dop first, then as a structure
// (nested structures act as DOPs).
func (r *resolver) resolveDOP(name string) (odx.DOP, bool) {
	if dop, ok := r.schema.DOPs[name]; ok {
		return dop, true
	}
	if st, ok := r.schema.Structures[name]; ok {
		return st, true
	}
	return nil, false
}

func (r *resolver) fillStructure(st *odx.Structure, ss *structSpec) error {
	st.ByteSize = ss.ByteSize
	for _, ps := range ss.Params {
		p, err := r.buildParam(&ps)
		if err != nil {
			return errors.Wrapf(err, "parameter %q", ps.Name)
		}
		st.Params = append(st.Params, p)
	}
	return nil
}

func (r *resolver) buildParam(ps *paramSpec) (odx.Parameter, error) {
	base := odx.ParamBase{
		ShortName: ps.Name,
		Sem:       ps.Semantic,
		BytePos:   ps.BytePos,
		BitPos:    ps.BitPos,
	}
	if ps.Name == "" {
		return nil, errors.New("parameter without a name")
	}

	switch strings.ToLower(ps.Kind) {
	case "codedconst":
		if ps.CodedValue == nil {
			return nil, errors.New("codedconst needs a codedValue")
		}
		bits := ps.Bits
		if bits <= 0 {
			bits = 8
		}
		return &odx.CodedConstParameter{
			ParamBase:  base,
			DiagCoded:  &odx.StandardLengthType{Type: odx.TypeUint, BitLength: bits},
			CodedValue: *ps.CodedValue,
		}, nil

	case "physicalconst":
		dop, ok := r.schema.DOPs[ps.DOP]
		if !ok {
			return nil, errors.Errorf("unknown dop %q", ps.DOP)
		}
		if ps.PhysicalValue == nil {
			return nil, errors.New("physicalconst needs a physicalValue")
		}
		return &odx.PhysicalConstParameter{
			ParamBase:     base,
			DOP:           dop,
			PhysicalValue: ps.PhysicalValue,
		}, nil

	case "value", "":
		dop, ok := r.resolveDOP(ps.DOP)
		if !ok {
			return nil, errors.Errorf("unknown dop %q", ps.DOP)
		}
		vp := &odx.ValueParameter{ParamBase: base, DOP: dop}
		if ps.Default != nil {
			vp.Default = ps.Default
			vp.HasDefault = true
		}
		return vp, nil

	case "list":
		st, ok := r.schema.Structures[ps.Structure]
		if !ok {
			return nil, errors.Errorf("unknown structure %q", ps.Structure)
		}
		return &odx.ValueParameter{
			ParamBase: base,
			DOP: &odx.EndOfPduField{
				ShortName: ps.Name,
				Structure: st,
				MinItems:  ps.MinItems,
				MaxItems:  ps.MaxItems,
			},
		}, nil

	case "reserved":
		if ps.Bits <= 0 {
			return nil, errors.New("reserved needs a positive bit count")
		}
		return &odx.ReservedParameter{ParamBase: base, BitLength: ps.Bits}, nil

	case "matchingrequest":
		if ps.ByteLength <= 0 {
			return nil, errors.New("matchingrequest needs a positive byteLength")
		}
		return &odx.MatchingRequestParameter{
			ParamBase:      base,
			RequestBytePos: ps.RequestBytePos,
			ByteLength:     ps.ByteLength,
		}, nil

	case "lengthkey":
		dop, ok := r.schema.DOPs[ps.DOP]
		if !ok {
			return nil, errors.Errorf("unknown dop %q", ps.DOP)
		}
		return &odx.LengthKeyParameter{ParamBase: base, DOP: dop}, nil

	case "tablekey":
		table, ok := r.schema.Tables[ps.Table]
		if !ok {
			return nil, errors.Errorf("unknown table %q", ps.Table)
		}
		return &odx.TableKeyParameter{ParamBase: base, Table: table}, nil

	case "tablestruct":
		table, ok := r.schema.Tables[ps.Table]
		if !ok {
			return nil, errors.Errorf("unknown table %q", ps.Table)
		}
		if ps.TableKey == "" {
			return nil, errors.New("tablestruct needs a tableKey")
		}
		return &odx.TableStructParameter{
			ParamBase:    base,
			Table:        table,
			TableKeyName: ps.TableKey,
		}, nil

	case "tableentry":
		table, ok := r.schema.Tables[ps.Table]
		if !ok {
			return nil, errors.Errorf("unknown table %q", ps.Table)
		}
		return &odx.TableEntryParameter{ParamBase: base, Table: table, RowName: ps.Row}, nil

	case "nrcconst":
		if len(ps.CodedValues) == 0 {
			return nil, errors.New("nrcconst needs codedValues")
		}
		bits := ps.Bits
		if bits <= 0 {
			bits = 8
		}
		return &odx.NrcConstParameter{
			ParamBase:   base,
			DiagCoded:   &odx.StandardLengthType{Type: odx.TypeUint, BitLength: bits},
			CodedValues: ps.CodedValues,
		}, nil

	case "system":
		dop, ok := r.schema.DOPs[ps.DOP]
		if !ok {
			return nil, errors.Errorf("unknown dop %q", ps.DOP)
		}
		if ps.SysParam == "" {
			return nil, errors.New("system needs a sysParam kind")
		}
		return &odx.SystemParameter{ParamBase: base, DOP: dop, SysParam: ps.SysParam}, nil

	case "dynamic":
		return &odx.DynamicParameter{ParamBase: base}, nil
	}
	return nil, errors.Errorf("unknown parameter kind %q", ps.Kind)
}

func (r *resolver) fillService(svc *serviceSpec) (*odx.Service, error) {
	if svc.Name == "" {
		return nil, errors.New("service without a name")
	}
	out := &odx.Service{ShortName: svc.Name}

	if svc.Request != "" {
		req, ok := r.schema.Structures[svc.Request]
		if !ok {
			return nil, errors.Errorf("unknown request structure %q", svc.Request)
		}
		out.Request = req
	}
	for _, name := range svc.PositiveResponses {
		st, ok := r.schema.Structures[name]
		if !ok {
			return nil, errors.Errorf("unknown positive response %q", name)
		}
		out.PositiveResponses = append(out.PositiveResponses, st)
	}
	for _, name := range svc.NegativeResponses {
		st, ok := r.schema.Structures[name]
		if !ok {
			return nil, errors.Errorf("unknown negative response %q", name)
		}
		out.NegativeResponses = append(out.NegativeResponses, st)
	}
	return out, nil
}
