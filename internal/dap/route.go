package dap

// Route binds a whitelisted wire route name to the approved pipeline that
// implements it and the collection it executes against (spec.md §4.2 step
// 1: "Validate query.route is in the whitelist of permitted routes").
type Route struct {
	Name         string
	PipelineName string
	Collection   string
}

// Routes is the permitted-route whitelist, keyed by wire route name.
type Routes map[string]Route

func (r Routes) Lookup(name string) (Route, bool) {
	rt, ok := r[name]
	return rt, ok
}
