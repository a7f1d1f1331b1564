package typepack

import (
	"fmt"
	"reflect"
	"time"

	"github.com/typepack/typepack-go/encoding/msgpack"
	"github.com/typepack/typepack-go/logging"
	"github.com/typepack/typepack-go/shapes"
)

// boundProperty is one serializable property with everything the hot paths
// need resolved up front: the pre-formatted wire name, the child converter
// and the default-value classification.
type boundProperty struct {
	prop shapes.Property
	name *PreformattedString
	conv Converter

	// fillInPlace is set for get-only map properties: pairs are inserted
	// into the pre-constructed instance instead of a fresh map.
	fillInPlace *mapConverter

	// suppressUnder is the mask bit under which a default value of this
	// property is omitted from the map form.
	suppressUnder DefaultsMask
}

// objectConverter is the default converter for user aggregates. It emits the
// map form keyed by property names. When every property carries an
// explicit key index it instead emits the shorter of the array form and
// the integer-keyed map form. The reader auto-detects whichever form arrives.
type objectConverter struct {
	id    string
	props []boundProperty

	// byName and byIndex dispatch incoming keys to property slots.
	byName  map[string]int
	byIndex map[int]int

	indexed  bool
	suppress DefaultsMask
	unused   *shapes.UnusedAccessor

	newInstance func() any
	construct   func([]any) (any, error)
	numCtorArgs int
}

func newObjectConverter(g *generation, s *shapes.Shape) (*objectConverter, error) {
	oc := &objectConverter{
		id:          s.ID,
		byName:      map[string]int{},
		byIndex:     map[int]int{},
		indexed:     len(s.Properties) > 0,
		suppress:    g.reg.opts.SerializeDefaultValues,
		unused:      s.Unused,
		newInstance: s.New,
		construct:   s.Construct,
	}
	if oc.newInstance == nil && oc.construct == nil {
		return nil, newError(UnsupportedType, "shape %s: object with neither factory nor constructor", s.ID)
	}

	naming := g.reg.opts.Naming
	for _, p := range s.Properties {
		if p.Ignore {
			continue
		}

		wire := p.EffectiveName()
		if p.WireName == "" && naming.Transform != nil {
			// naming policies touch inferred names only
			wire = naming.Transform(p.Name)
		}

		conv, err := g.converterFor(p.Shape)
		if err != nil {
			return nil, fmt.Errorf("property %s: %w", p.Name, err)
		}

		bp := boundProperty{
			prop:          p,
			name:          NewPreformattedString(wire),
			conv:          conv,
			suppressUnder: suppressionClass(p.Shape),
		}
		if p.Set == nil && p.CtorIndex < 0 {
			mc, ok := conv.(*mapConverter)
			if !ok {
				return nil, newError(UnsupportedType, "shape %s: get-only property %s is not a fillable map", s.ID, p.Name)
			}
			bp.fillInPlace = mc
		}

		slot := len(oc.props)
		oc.props = append(oc.props, bp)

		if _, dup := oc.byName[wire]; dup {
			return nil, newError(InvalidOperation, "shape %s: duplicate wire name %q", s.ID, wire)
		}
		oc.byName[wire] = slot

		if p.Index >= 0 {
			if _, dup := oc.byIndex[p.Index]; dup {
				return nil, newError(InvalidOperation, "shape %s: duplicate key index %d", s.ID, p.Index)
			}
			oc.byIndex[p.Index] = slot
		} else {
			oc.indexed = false
		}

		if p.CtorIndex >= 0 && p.CtorIndex+1 > oc.numCtorArgs {
			oc.numCtorArgs = p.CtorIndex + 1
		}
	}
	return oc, nil
}

// suppressionClass maps a property shape to the mask flag governing its
// suppression when default-valued.
func suppressionClass(s *shapes.Shape) DefaultsMask {
	switch s.Kind {
	case shapes.KindOptional:
		return SuppressReferenceDefaults
	case shapes.KindString:
		return SuppressEmptyStrings
	case shapes.KindSequence, shapes.KindMap, shapes.KindMultiArray, shapes.KindBinary:
		return SuppressEmptyCollections
	case shapes.KindObject, shapes.KindUnion:
		// aggregates are always present in this data model
		return 0
	default:
		return SuppressValueTypeDefaults
	}
}

// isDefaultValue reports whether v is the property's default: the explicit
// default when one is declared, the natural zero of the shape otherwise.
func (bp *boundProperty) isDefaultValue(v any) bool {
	if bp.prop.Default != nil {
		return reflect.DeepEqual(v, bp.prop.Default)
	}
	s := bp.prop.Shape
	switch s.Kind {
	case shapes.KindOptional:
		return s.Opt.IsNone(v)
	case shapes.KindString:
		return v.(string) == ""
	case shapes.KindSequence, shapes.KindMultiArray:
		return v == nil || s.Seq.Len(v) == 0
	case shapes.KindMap:
		return v == nil || s.Assoc.Len(v) == 0
	case shapes.KindBinary:
		return len(v.([]byte)) == 0
	case shapes.KindBool:
		return v == false
	case shapes.KindInt8, shapes.KindInt16, shapes.KindInt32, shapes.KindInt64:
		return asInt64(v) == 0
	case shapes.KindUint8, shapes.KindUint16, shapes.KindUint32, shapes.KindUint64, shapes.KindChar:
		return asUint64(v) == 0
	case shapes.KindFloat32:
		return v.(float32) == 0
	case shapes.KindFloat64:
		return v.(float64) == 0
	case shapes.KindEnum:
		return s.Enum.ToOrdinal(v) == 0
	case shapes.KindTimestamp:
		t, ok := v.(time.Time)
		return ok && t.IsZero()
	default:
		return false
	}
}

// suppressed reports whether the configured policy omits this property for
// the value it currently holds.
func (bp *boundProperty) suppressed(mask DefaultsMask, v any) bool {
	return mask&bp.suppressUnder != 0 && bp.isDefaultValue(v)
}

func (oc *objectConverter) Write(ctx *Context, w *msgpack.Writer, v any) error {
	if err := ctx.Enter(); err != nil {
		return err
	}
	defer ctx.Leave()

	var packet *shapes.UnusedData
	if oc.unused != nil {
		packet = oc.unused.Get(v)
	}

	if oc.indexed && (packet == nil || len(packet.Entries) == 0) {
		return oc.writeIndexed(ctx, w, v)
	}
	return oc.writeNamed(ctx, w, v, packet)
}

// writeNamed emits the map form: pre-formatted property names as keys,
// retained unused entries appended verbatim.
func (oc *objectConverter) writeNamed(ctx *Context, w *msgpack.Writer, v any, packet *shapes.UnusedData) error {
	values := make([]any, len(oc.props))
	include := 0
	for i := range oc.props {
		values[i] = oc.props[i].prop.Get(v)
		if !oc.props[i].suppressed(oc.suppress, values[i]) {
			include++
		} else {
			values[i] = suppressedSentinel{}
		}
	}

	retained := 0
	if packet != nil {
		retained = len(packet.Entries)
	}

	w.WriteMapHeader(include + retained)
	for i := range oc.props {
		if _, skip := values[i].(suppressedSentinel); skip {
			continue
		}
		oc.props[i].name.WriteTo(w)
		if err := oc.props[i].conv.Write(ctx, w, values[i]); err != nil {
			return fmt.Errorf("property %s: %w", oc.props[i].prop.Name, err)
		}
	}
	if packet != nil {
		for _, e := range packet.Entries {
			w.WriteRaw(e.Key)
			w.WriteRaw(e.Value)
		}
	}
	return nil
}

type suppressedSentinel struct{}

// writeIndexed chooses between the array form and the integer-keyed map
// form by a byte estimate: an array padded with nil gaps versus a map
// spending a key token per present entry.
func (oc *objectConverter) writeIndexed(ctx *Context, w *msgpack.Writer, v any) error {
	values := make([]any, len(oc.props))
	present := make([]bool, len(oc.props))

	arrayLen := 0 // max present index + 1, trailing defaults trimmed
	keyBytes := 0
	presentCount := 0
	for i := range oc.props {
		values[i] = oc.props[i].prop.Get(v)
		if oc.props[i].suppressed(oc.suppress, values[i]) {
			continue
		}
		present[i] = true
		presentCount++
		idx := oc.props[i].prop.Index
		if idx+1 > arrayLen {
			arrayLen = idx + 1
		}
		keyBytes += intTokenLen(int64(idx))
	}

	nilGaps := arrayLen - presentCount
	if nilGaps > keyBytes {
		// sparse: the map spends fewer bytes on keys than the array would
		// on nil padding
		w.WriteMapHeader(presentCount)
		for i := range oc.props {
			if !present[i] {
				continue
			}
			w.WriteInt(int64(oc.props[i].prop.Index))
			if err := oc.props[i].conv.Write(ctx, w, values[i]); err != nil {
				return fmt.Errorf("property %s: %w", oc.props[i].prop.Name, err)
			}
		}
		return nil
	}

	w.WriteArrayHeader(arrayLen)
	for slot := 0; slot < arrayLen; slot++ {
		i, ok := oc.byIndex[slot]
		if !ok || !present[i] {
			w.WriteNil()
			continue
		}
		if err := oc.props[i].conv.Write(ctx, w, values[i]); err != nil {
			return fmt.Errorf("property %s: %w", oc.props[i].prop.Name, err)
		}
	}
	return nil
}

// intTokenLen is the encoded size of a small non-negative integer key.
func intTokenLen(v int64) int {
	switch {
	case v < 0x80:
		return 1
	case v < 0x100:
		return 2
	case v < 0x10000:
		return 3
	default:
		return 5
	}
}

// readState accumulates one object while its structure is consumed: direct
// assignment for factory objects, argument slots plus deferred sets for
// constructor objects.
type readState struct {
	oc       *objectConverter
	instance any
	args     []any
	deferred []deferredSet
	seen     bitset
	packet   *shapes.UnusedData
}

type deferredSet struct {
	slot  int
	value any
}

func (oc *objectConverter) newReadState() *readState {
	st := &readState{oc: oc, seen: newBitset(len(oc.props))}
	if oc.newInstance != nil {
		st.instance = oc.newInstance()
	} else {
		st.args = make([]any, oc.numCtorArgs)
	}
	return st
}

// markSeen enforces the double-assignment guard.
func (st *readState) markSeen(slot int, offset int) error {
	if st.seen.has(slot) {
		return &Error{Kind: DoublePropertyAssignment, Offset: offset,
			Msg: fmt.Sprintf("property %s assigned twice", st.oc.props[slot].prop.Name)}
	}
	st.seen.set(slot)
	return nil
}

func (st *readState) assign(ctx *Context, r *msgpack.Reader, slot int) error {
	bp := &st.oc.props[slot]

	if bp.fillInPlace != nil {
		if st.instance == nil {
			return newError(UnsupportedType, "object %s: fill-in-place property %s on a constructor object", st.oc.id, bp.prop.Name)
		}
		return bp.fillInPlace.readInto(ctx, r, bp.prop.Get(st.instance))
	}

	v, err := bp.conv.Read(ctx, r)
	if err != nil {
		return err
	}
	switch {
	case bp.prop.CtorIndex >= 0:
		st.args[bp.prop.CtorIndex] = v
	case st.instance != nil:
		bp.prop.Set(st.instance, v)
	default:
		// settable property on a constructor object: applied after the
		// constructor runs
		st.deferred = append(st.deferred, deferredSet{slot: slot, value: v})
	}
	return nil
}

// finish validates required properties, runs the constructor when the
// object is constructor-shaped and attaches any retained unused data.
func (st *readState) finish(offset int) (any, error) {
	oc := st.oc
	for i := range oc.props {
		if st.seen.has(i) {
			continue
		}
		p := &oc.props[i].prop
		switch {
		case p.Required:
			return nil, &Error{Kind: MissingRequired, Offset: offset,
				Msg: fmt.Sprintf("required property %s absent", p.Name)}
		case p.CtorIndex >= 0:
			if p.Default == nil {
				return nil, &Error{Kind: MissingRequired, Offset: offset,
					Msg: fmt.Sprintf("constructor parameter %s absent with no default", p.Name)}
			}
			st.args[p.CtorIndex] = p.Default
		}
	}

	instance := st.instance
	if instance == nil {
		var err error
		instance, err = oc.construct(st.args)
		if err != nil {
			return nil, fmt.Errorf("construct %s: %w", oc.id, err)
		}
		for _, d := range st.deferred {
			oc.props[d.slot].prop.Set(instance, d.value)
		}
	}

	if st.packet != nil && oc.unused != nil {
		oc.unused.Set(instance, st.packet)
	}
	return instance, nil
}

// retain copies a framed key/value pair into the unused-data packet, or
// skips the value when the type does not opt in.
func (st *readState) retain(ctx *Context, r *msgpack.Reader, keyRaw []byte) error {
	if st.oc.unused == nil {
		ctx.Logger().Logf(logging.Debug, "object %s: skipping unknown key", st.oc.id)
		return wrapCodec(r.Skip(), r.Pos())
	}
	valueRaw, err := r.ReadRaw()
	if err != nil {
		return wrapCodec(err, r.Pos())
	}
	if st.packet == nil {
		st.packet = &shapes.UnusedData{}
	}
	key := make([]byte, len(keyRaw))
	copy(key, keyRaw)
	value := make([]byte, len(valueRaw))
	copy(value, valueRaw)
	st.packet.Entries = append(st.packet.Entries, shapes.UnusedEntry{Key: key, Value: value})
	return nil
}

func (oc *objectConverter) Read(ctx *Context, r *msgpack.Reader) (any, error) {
	if err := ctx.Enter(); err != nil {
		return nil, err
	}
	defer ctx.Leave()

	start := r.Pos()
	t, err := r.Peek()
	if err != nil {
		return nil, wrapCodec(err, r.Pos())
	}
	switch t {
	case msgpack.MapType:
		return oc.readMapForm(ctx, r)
	case msgpack.ArrayType:
		if !oc.indexed {
			return nil, &Error{Kind: Malformed, Offset: start,
				Msg: fmt.Sprintf("array where object %s expects a map", oc.id)}
		}
		return oc.readArrayForm(ctx, r)
	default:
		return nil, &Error{Kind: Malformed, Offset: start,
			Msg: fmt.Sprintf("token %s where object %s expected", t, oc.id)}
	}
}

// readMapForm consumes the map form. Keys dispatch by name (string tokens,
// matched byte-for-byte against pre-formatted names) or by index (integer
// tokens); the two may mix within one payload.
func (oc *objectConverter) readMapForm(ctx *Context, r *msgpack.Reader) (any, error) {
	n, err := r.ReadMapHeader()
	if err != nil {
		return nil, wrapCodec(err, r.Pos())
	}

	st := oc.newReadState()
	for i := 0; i < n; i++ {
		keyStart := r.Fork()
		keyOffset := r.Pos()

		t, err := r.Peek()
		if err != nil {
			return nil, wrapCodec(err, r.Pos())
		}

		slot := -1
		switch t {
		case msgpack.StrType:
			kb, err := r.ReadStringBytes()
			if err != nil {
				return nil, wrapCodec(err, r.Pos())
			}
			if s, ok := oc.byName[string(kb)]; ok {
				slot = s
			}
		case msgpack.IntType, msgpack.UintType:
			idx, err := r.ReadInt()
			if err != nil {
				return nil, wrapCodec(err, r.Pos())
			}
			if s, ok := oc.byIndex[int(idx)]; ok {
				slot = s
			}
		default:
			if err := r.Skip(); err != nil {
				return nil, wrapCodec(err, r.Pos())
			}
		}

		if slot < 0 {
			keyRaw, err := keyStart.ReadRaw()
			if err != nil {
				return nil, wrapCodec(err, keyOffset)
			}
			if err := st.retain(ctx, r, keyRaw); err != nil {
				return nil, err
			}
			continue
		}

		if err := st.markSeen(slot, keyOffset); err != nil {
			return nil, err
		}
		if err := st.assign(ctx, r, slot); err != nil {
			return nil, fmt.Errorf("property %s: %w", oc.props[slot].prop.Name, err)
		}
	}
	return st.finish(r.Pos())
}

// readArrayForm consumes the array form: slots in index order, nil for
// gaps, out-of-range slots consumed and ignored to permit schema growth.
func (oc *objectConverter) readArrayForm(ctx *Context, r *msgpack.Reader) (any, error) {
	n, err := r.ReadArrayHeader()
	if err != nil {
		return nil, wrapCodec(err, r.Pos())
	}

	st := oc.newReadState()
	for slot := 0; slot < n; slot++ {
		i, ok := oc.byIndex[slot]
		if !ok {
			if err := r.Skip(); err != nil {
				return nil, wrapCodec(err, r.Pos())
			}
			continue
		}

		// a nil slot means the writer trimmed or defaulted this property;
		// only optional shapes decode nil as a value
		if oc.props[i].prop.Shape.Kind != shapes.KindOptional && r.TryReadNil() {
			continue
		}

		if err := st.markSeen(i, r.Pos()); err != nil {
			return nil, err
		}
		if err := st.assign(ctx, r, i); err != nil {
			return nil, fmt.Errorf("property %s: %w", oc.props[i].prop.Name, err)
		}
	}
	return st.finish(r.Pos())
}

// ReadProperty implements the targeted fast path: position on the named
// property inside a buffered object and decode just it.
func (oc *objectConverter) ReadProperty(ctx *Context, r *msgpack.Reader, name string) (any, bool, error) {
	slot, ok := oc.byName[name]
	if !ok {
		return nil, false, nil
	}
	return oc.seek(ctx, r, slot)
}

// ReadIndex is ReadProperty for an explicit key index.
func (oc *objectConverter) ReadIndex(ctx *Context, r *msgpack.Reader, index int) (any, bool, error) {
	slot, ok := oc.byIndex[index]
	if !ok {
		return nil, false, nil
	}
	return oc.seek(ctx, r, slot)
}

func (oc *objectConverter) seek(ctx *Context, r *msgpack.Reader, slot int) (any, bool, error) {
	bp := &oc.props[slot]

	t, err := r.Peek()
	if err != nil {
		return nil, false, wrapCodec(err, r.Pos())
	}

	switch t {
	case msgpack.MapType:
		n, err := r.ReadMapHeader()
		if err != nil {
			return nil, false, wrapCodec(err, r.Pos())
		}
		for i := 0; i < n; i++ {
			kt, err := r.Peek()
			if err != nil {
				return nil, false, wrapCodec(err, r.Pos())
			}
			match := false
			switch kt {
			case msgpack.StrType:
				kb, err := r.ReadStringBytes()
				if err != nil {
					return nil, false, wrapCodec(err, r.Pos())
				}
				match = bp.name.MatchBytes(kb)
			case msgpack.IntType, msgpack.UintType:
				idx, err := r.ReadInt()
				if err != nil {
					return nil, false, wrapCodec(err, r.Pos())
				}
				match = bp.prop.Index >= 0 && int(idx) == bp.prop.Index
			default:
				if err := r.Skip(); err != nil {
					return nil, false, wrapCodec(err, r.Pos())
				}
			}
			if !match {
				if err := r.Skip(); err != nil {
					return nil, false, wrapCodec(err, r.Pos())
				}
				continue
			}
			v, err := bp.conv.Read(ctx, r)
			return v, err == nil, err
		}
		return nil, false, nil

	case msgpack.ArrayType:
		if bp.prop.Index < 0 {
			return nil, false, nil
		}
		n, err := r.ReadArrayHeader()
		if err != nil {
			return nil, false, wrapCodec(err, r.Pos())
		}
		if bp.prop.Index >= n {
			return nil, false, nil
		}
		for i := 0; i < bp.prop.Index; i++ {
			if err := r.Skip(); err != nil {
				return nil, false, wrapCodec(err, r.Pos())
			}
		}
		v, err := bp.conv.Read(ctx, r)
		return v, err == nil, err

	default:
		return nil, false, &Error{Kind: Malformed, Offset: r.Pos(),
			Msg: fmt.Sprintf("token %s where object %s expected", t, oc.id)}
	}
}

func (oc *objectConverter) PreferAsync() bool {
	for i := range oc.props {
		if preferAsync(oc.props[i].conv) {
			return true
		}
	}
	return false
}

// bitset tracks seen property slots in dense words.
type bitset []uint64

func newBitset(n int) bitset {
	return make(bitset, (n+63)/64)
}

func (b bitset) has(i int) bool { return b[i/64]&(1<<(i%64)) != 0 }
func (b bitset) set(i int)      { b[i/64] |= 1 << (i % 64) }
