package binding

// Code is the result of a command as reported by the world.
type Code string

const (
	CodeOK Code = "OK"

	// Range/state results the controller expects and handles.
	CodeNotInRange Code = "E_NOT_IN_RANGE"
	CodeNotEnough  Code = "E_NOT_ENOUGH"
	CodeFull       Code = "E_FULL"
	CodeTired      Code = "E_TIRED"

	// Target/argument problems.
	CodeInvalidTarget Code = "E_INVALID_TARGET"
	CodeInvalidArgs   Code = "E_INVALID_ARGS"
	CodeNotFound      Code = "E_NOT_FOUND"
	CodeNoBodyPart    Code = "E_NO_BODY_PART"
	CodeNoPath        Code = "E_NO_PATH"
	CodeBlocked       Code = "E_BLOCKED"

	// Production.
	CodeBusy       Code = "E_BUSY"
	CodeNameExists Code = "E_NAME_EXISTS"

	CodeInternal Code = "E_INTERNAL"
)

var knownCodes = map[Code]struct{}{
	CodeOK:            {},
	CodeNotInRange:    {},
	CodeNotEnough:     {},
	CodeFull:          {},
	CodeTired:         {},
	CodeInvalidTarget: {},
	CodeInvalidArgs:   {},
	CodeNotFound:      {},
	CodeNoBodyPart:    {},
	CodeNoPath:        {},
	CodeBlocked:       {},
	CodeBusy:          {},
	CodeNameExists:    {},
	CodeInternal:      {},
}

func IsKnownCode(c Code) bool {
	_, ok := knownCodes[c]
	return ok
}
