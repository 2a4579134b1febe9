package spec

import (
	"sort"
	"strings"
)

// ScanAll loads every discovered spec and resolves cross-spec references
// from task dependency annotations.
func (s *Scanner) ScanAll() ([]*Spec, error) {
	names, err := s.Discover()
	if err != nil {
		return nil, err
	}

	specs := make([]*Spec, 0, len(names))
	byName := make(map[string]*Spec, len(names))
	for _, name := range names {
		sp, err := s.Load(name)
		if err != nil {
			s.logger.WithError(err).Warn("skipping unreadable spec", "spec", name)
			continue
		}
		specs = append(specs, sp)
		byName[name] = sp
	}

	for _, sp := range specs {
		if sp.TasksPath == "" {
			continue
		}
		res, err := s.ParseTasks(sp.Name)
		if err != nil {
			continue
		}
		seen := map[string]bool{}
		for _, t := range res.Tasks {
			for _, dep := range t.Dependencies {
				target := specReference(dep)
				if target == "" || target == sp.Name || seen[target] {
					continue
				}
				other, ok := byName[target]
				if !ok {
					continue
				}
				seen[target] = true
				sp.Dependencies = append(sp.Dependencies, target)
				other.Dependents = append(other.Dependents, sp.Name)
			}
		}
	}
	for _, sp := range specs {
		sort.Strings(sp.Dependencies)
		sort.Strings(sp.Dependents)
	}
	return specs, nil
}

// specReference normalizes a dependency annotation that may name a spec:
// "billing", "spec:billing" or "specs/billing".
func specReference(dep string) string {
	dep = strings.TrimSpace(dep)
	dep = strings.TrimPrefix(dep, "spec:")
	dep = strings.TrimPrefix(dep, "specs/")
	dep = strings.TrimSuffix(dep, "/")
	if dep == "" || strings.HasPrefix(dep, "#") {
		return ""
	}
	return dep
}

// CompleteSpecs returns specs whose checklist is fully ticked.
func (s *Scanner) CompleteSpecs() ([]*Spec, error) {
	return s.filter(func(sp *Spec) bool { return sp.IsComplete })
}

// IncompleteSpecs returns specs with open or no tasks.
func (s *Scanner) IncompleteSpecs() ([]*Spec, error) {
	return s.filter(func(sp *Spec) bool { return !sp.IsComplete })
}

func (s *Scanner) filter(keep func(*Spec) bool) ([]*Spec, error) {
	specs, err := s.ScanAll()
	if err != nil {
		return nil, err
	}
	var out []*Spec
	for _, sp := range specs {
		if keep(sp) {
			out = append(out, sp)
		}
	}
	return out, nil
}

// ReadyForArchival returns specs that are both complete and valid. A
// complete spec that fails validation is never returned.
func (s *Scanner) ReadyForArchival() ([]*Spec, error) {
	complete, err := s.CompleteSpecs()
	if err != nil {
		return nil, err
	}
	var ready []*Spec
	for _, sp := range complete {
		v := s.ValidateSpec(sp.Path)
		if !v.Valid {
			s.logger.Info("complete spec is not valid, not archiving", "spec", sp.Name, "issues", v.Issues)
			continue
		}
		ready = append(ready, sp)
	}
	return ready, nil
}

// ScanAndValidateAll validates every discovered spec and builds a report.
func (s *Scanner) ScanAndValidateAll() (*Report, error) {
	specs, err := s.ScanAll()
	if err != nil {
		return nil, err
	}

	report := &Report{
		TotalSpecs:    len(specs),
		ValidSpecs:    []string{},
		InvalidSpecs:  []string{},
		Issues:        map[string][]string{},
		Warnings:      map[string][]string{},
		CompleteSpecs: []string{},
		ReadySpecs:    []string{},
	}
	for _, sp := range specs {
		v := s.ValidateSpec(sp.Path)
		if v.Valid {
			report.ValidSpecs = append(report.ValidSpecs, sp.Name)
		} else {
			report.InvalidSpecs = append(report.InvalidSpecs, sp.Name)
			report.Issues[sp.Name] = v.Issues
		}
		if len(v.Warnings) > 0 {
			report.Warnings[sp.Name] = v.Warnings
		}
		if sp.IsComplete {
			report.CompleteSpecs = append(report.CompleteSpecs, sp.Name)
			if v.Valid {
				report.ReadySpecs = append(report.ReadySpecs, sp.Name)
			}
		}
	}
	return report, nil
}
