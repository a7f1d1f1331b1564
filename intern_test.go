package typepack

import (
	"context"
	"testing"
	"unsafe"

	"gotest.tools/v3/assert"
)

func TestInternString_CanonicalInstance(t *testing.T) {
	a := internString([]byte("recurring-property"))
	b := internString([]byte("recurring-property"))
	assert.Equal(t, a, b)
	assert.Assert(t, unsafe.StringData(a) == unsafe.StringData(b),
		"repeats must share one backing instance")

	c := internString([]byte("different"))
	assert.Equal(t, "different", c)
}

func TestInternString_AcrossDeserializations(t *testing.T) {
	s := NewSerializer(func(o *SerializerOptions) {
		o.InternStrings = true
	})
	ctx := context.Background()

	p, err := Marshal(ctx, s, person{FirstName: "repeated", LastName: "repeated"})
	assert.NilError(t, err)

	one, err := Unmarshal[person](ctx, s, p)
	assert.NilError(t, err)
	two, err := Unmarshal[person](ctx, s, p)
	assert.NilError(t, err)

	assert.Assert(t, unsafe.StringData(one.FirstName) == unsafe.StringData(one.LastName),
		"identical strings within one payload intern to one instance")
	assert.Assert(t, unsafe.StringData(one.FirstName) == unsafe.StringData(two.FirstName),
		"interning persists across calls on the same process")
}

func TestOptions_Fingerprint(t *testing.T) {
	a := SerializerOptions{Naming: SnakeCase}
	b := SerializerOptions{Naming: CamelCase}
	c := SerializerOptions{Naming: SnakeCase}
	a.applyDefaults()
	b.applyDefaults()
	c.applyDefaults()

	assert.Assert(t, a.fingerprint() != b.fingerprint())
	assert.Equal(t, a.fingerprint(), c.fingerprint())

	// depth does not shape converters, so it stays out of the fingerprint
	d := SerializerOptions{Naming: SnakeCase, MaxDepth: 3}
	d.applyDefaults()
	assert.Equal(t, a.fingerprint(), d.fingerprint())
}

func TestNamingPolicies(t *testing.T) {
	for name, c := range map[string]struct {
		policy NamingPolicy
		in     string
		want   string
	}{
		"snake simple":    {SnakeCase, "FirstName", "first_name"},
		"snake acronym":   {SnakeCase, "HTTPPort", "http_port"},
		"kebab":           {KebabCase, "FileCount", "file-count"},
		"camel":           {CamelCase, "FirstName", "firstName"},
		"camel acronym":   {CamelCase, "HTTPPort", "httpPort"},
		"pascal":          {PascalCase, "firstName", "FirstName"},
		"camel lowercase": {CamelCase, "already", "already"},
	} {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, c.want, c.policy.Transform(c.in))
		})
	}
}
