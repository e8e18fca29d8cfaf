package parser

// reservedNames lists identifiers with builtin meaning in scripts:
// space constructors, tensor kinds and expression functions. They are
// recognized positionally, so declaring one as a user name would only
// shadow it confusingly.
var reservedNames = []string{
	"fe",
	"mixed",
	"matrix",
	"vector",
	"scalar",
	"inverse",
	"action",
}

var reservedSet = func() map[string]struct{} {
	m := make(map[string]struct{}, len(reservedNames))
	for _, n := range reservedNames {
		m[n] = struct{}{}
	}
	return m
}()

// ReservedNames returns a copy of the builtin identifiers.
func ReservedNames() []string {
	return append([]string(nil), reservedNames...)
}

// IsReservedName reports whether name is taken by a builtin construct.
func IsReservedName(name string) bool {
	_, ok := reservedSet[name]
	return ok
}
