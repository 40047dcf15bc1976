package query

import (
	"sort"
	"strings"

	"github.com/exaring/fernglas/directory"
	"github.com/exaring/fernglas/store"
)

// TriggerPolicy controls when selector changes submit the form.
type TriggerPolicy int

const (
	// SubmitOnChange re-submits immediately when a selector changes.
	SubmitOnChange TriggerPolicy = iota
	// SubmitExplicit only submits on an explicit submit action.
	SubmitExplicit
)

// Option is one selectable entry of a form selector.
type Option struct {
	Value    string
	Label    string
	Selected bool
}

// Form is the rendered search form: the selectable router and routing
// instance options for the current directory, pre-selected from the
// current query.
type Form struct {
	Routers []Option
	// Instances is nil when the directory holds at most one distinct
	// routing instance; there is nothing to disambiguate then.
	Instances []Option
	Trigger   TriggerPolicy
}

// DedupInstances flattens the routing instance directory and deduplicates
// it by the (route distinguisher, display name) pair. Entries sharing a
// route distinguisher but carrying different display names both survive:
// conflicting naming observed by the backend is surfaced, not merged.
// The result is sorted for a reproducible rendering order.
func DedupInstances(groups map[string][]store.RoutingInstance) []store.RoutingInstance {
	seen := make(map[store.RoutingInstance]struct{})
	var instances []store.RoutingInstance
	for _, group := range groups {
		for _, instance := range group {
			if _, ok := seen[instance]; ok {
				continue
			}
			seen[instance] = struct{}{}
			instances = append(instances, instance)
		}
	}
	sort.Slice(instances, func(i, j int) bool {
		if instances[i].RouteDistinguisher != instances[j].RouteDistinguisher {
			return instances[i].RouteDistinguisher < instances[j].RouteDistinguisher
		}
		return instances[i].Name < instances[j].Name
	})
	return instances
}

// BuildForm renders the selector options for the given directory,
// pre-selecting the options matching the current query.
func BuildForm(dir *directory.Directory, current Query) Form {
	form := Form{Trigger: SubmitOnChange}
	form.Routers = routerOptions(dir.Routers, current.Router)

	instances := DedupInstances(dir.Instances)
	if len(instances) > 1 {
		form.Instances = instanceOptions(instances, current.RouteDistinguisher)
	}
	return form
}

// routerOptions collapses routers to one option per distinct client name,
// since filtering is by name, not id, plus the synthetic all-routers
// option.
func routerOptions(routers []directory.Router, selected string) []Option {
	options := []Option{{Value: RouterAll, Label: "all routers"}}
	seen := map[string]struct{}{}
	for _, router := range routers {
		if _, ok := seen[router.ClientName]; ok {
			continue
		}
		seen[router.ClientName] = struct{}{}
		options = append(options, Option{Value: router.ClientName, Label: router.ClientName})
	}
	return preselect(options, selected)
}

// instanceOptions renders one option per deduplicated instance, labeled by
// display name when present and by the raw route distinguisher otherwise,
// plus the synthetic default-instance option.
func instanceOptions(instances []store.RoutingInstance, selected string) []Option {
	options := []Option{{Value: InstanceDefault, Label: "default"}}
	for _, instance := range instances {
		label := instance.Name
		if label == "" {
			label = instance.RouteDistinguisher
		}
		options = append(options, Option{Value: instance.RouteDistinguisher, Label: label})
	}
	return preselect(options, selected)
}

// preselect marks the option matching value, falling back to the first
// (sentinel) option when nothing matches.
func preselect(options []Option, value string) []Option {
	matched := false
	for i := range options {
		if options[i].Value == value {
			options[i].Selected = true
			matched = true
			break
		}
	}
	if !matched {
		options[0].Selected = true
	}
	return options
}

// Submission is the user's form state at submit time, produced by the UI
// layer as an explicit command value.
type Submission struct {
	Mode               store.MatchMode
	Value              string
	Router             string
	RouteDistinguisher string
}

// Submit serializes a submission into a canonical query. When the form
// offers no instance selector the routing instance is implicitly the
// default one, regardless of the submitted value.
func (f Form) Submit(sub Submission) Query {
	q := Query{
		Mode:               sub.Mode,
		Value:              strings.TrimSpace(sub.Value),
		Router:             sub.Router,
		RouteDistinguisher: sub.RouteDistinguisher,
	}
	if q.Mode == "" {
		q.Mode = store.MatchMostSpecific
	}
	if q.Router == "" {
		q.Router = RouterAll
	}
	if f.Instances == nil || q.RouteDistinguisher == "" {
		q.RouteDistinguisher = InstanceDefault
	}
	return q
}

// Selection returns the currently selected router and routing instance
// values, the sentinels when the respective selector offers no selection.
func (f Form) Selection() (router, instance string) {
	router, instance = RouterAll, InstanceDefault
	for _, opt := range f.Routers {
		if opt.Selected {
			router = opt.Value
			break
		}
	}
	for _, opt := range f.Instances {
		if opt.Selected {
			instance = opt.Value
			break
		}
	}
	return router, instance
}
