package handler

type ContextKey string

var (
	EmployeeIDCtx   ContextKey = "employeeID"
	CapabilitiesCtx ContextKey = "capabilities"
	ScopeCtx        ContextKey = "scope"
	SwapRequestCtx  ContextKey = "swapRequest"
)
