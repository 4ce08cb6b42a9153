package service

// Outcome 写操作的结果。查不到目标、重复操作都不是错误。
type Outcome int

const (
	Applied Outcome = iota
	AlreadyExists
	TargetNotFound
	Rejected
)

var outcomeNames = [...]string{
	Applied:        "APPLIED",
	AlreadyExists:  "ALREADY_EXISTS",
	TargetNotFound: "TARGET_NOT_FOUND",
	Rejected:       "REJECTED",
}

func (o Outcome) String() string {
	if o < 0 || int(o) >= len(outcomeNames) {
		return "UNKNOWN"
	}
	return outcomeNames[o]
}

func (o Outcome) MarshalText() ([]byte, error) { return []byte(o.String()), nil }
