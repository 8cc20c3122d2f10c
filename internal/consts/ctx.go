package consts

// CtxKey is the type used for context value keys across the framework.
type CtxKey string

const (
	CtxKeyLogID      CtxKey = "log_id"
	CtxKeyController CtxKey = "controller"
)
