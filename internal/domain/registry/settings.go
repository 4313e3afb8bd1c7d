package registry

import (
	"github.com/GriffinCanCode/pkgmgr/internal/domain/broadcast"
	"github.com/GriffinCanCode/pkgmgr/internal/shared/pmerr"
	"github.com/GriffinCanCode/pkgmgr/internal/shared/types"
)

// SetApplicationEnabledSetting stores the raw per-user setting. DEFAULT is
// stored as DEFAULT and resolved against the manifest on every read.
func (r *Registry) SetApplicationEnabledSetting(name string, user int, state types.EnabledState) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, st, err := r.userStateLocked(name, user)
	if err != nil {
		return err
	}
	if st.Enabled == state {
		return nil
	}
	st.Enabled = state
	r.persistLocked(rec.Name)
	r.publish([]broadcast.Broadcast{{
		Action:      broadcast.ActionPackageChanged,
		PackageName: name,
		UserID:      user,
		Components:  []string{name},
	}})
	return nil
}

// ApplicationEnabledSetting returns the raw setting.
func (r *Registry) ApplicationEnabledSetting(name string, user int) (types.EnabledState, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, st, err := r.userStateLocked(name, user)
	if err != nil {
		return types.EnabledDefault, err
	}
	return st.Enabled, nil
}

// SetComponentEnabledSetting stores a per-user component setting.
func (r *Registry) SetComponentEnabledSetting(comp types.ComponentName, user int, state types.EnabledState) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, st, err := r.userStateLocked(comp.Package, user)
	if err != nil {
		return err
	}
	if !rec.hasComponent(comp.Class) {
		return pmerr.New(pmerr.ActivityNotFound, "Component class %s does not exist in %s", comp.Class, comp.Package)
	}
	if st.Components[comp.Class] == state {
		return nil
	}
	if state == types.EnabledDefault {
		delete(st.Components, comp.Class)
	} else {
		if st.Components == nil {
			st.Components = make(map[string]types.EnabledState)
		}
		st.Components[comp.Class] = state
	}
	r.persistLocked(rec.Name)
	r.publish([]broadcast.Broadcast{{
		Action:      broadcast.ActionPackageChanged,
		PackageName: comp.Package,
		UserID:      user,
		Components:  []string{comp.Class},
	}})
	return nil
}

// ComponentEnabledSetting returns the raw component setting.
func (r *Registry) ComponentEnabledSetting(comp types.ComponentName, user int) (types.EnabledState, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, st, err := r.userStateLocked(comp.Package, user)
	if err != nil {
		return types.EnabledDefault, err
	}
	if !rec.hasComponent(comp.Class) {
		return types.EnabledDefault, pmerr.New(pmerr.ActivityNotFound, "Component class %s does not exist in %s", comp.Class, comp.Package)
	}
	return st.Components[comp.Class], nil
}

// IsComponentEnabled resolves a component's effective enabled state.
func (r *Registry) IsComponentEnabled(comp types.ComponentName, user int) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, st, err := r.userStateLocked(comp.Package, user)
	if err != nil {
		return false, err
	}
	if !rec.hasComponent(comp.Class) {
		return false, pmerr.New(pmerr.ActivityNotFound, "Component class %s does not exist in %s", comp.Class, comp.Package)
	}
	return rec.componentEnabled(st, comp.Class, resolvedManifestDefault(rec.Manifest, comp.Class)), nil
}

// ResolveActivity resolves an explicit activity for a user. Archived
// packages resolve from their archive metadata on an exact component match
// only. Packages in a profile hidden from caller never resolve.
func (r *Registry) ResolveActivity(caller types.Caller, comp types.ComponentName, user int) *types.ActivityInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.visible(caller, user) {
		return nil
	}
	rec, ok := r.packages[comp.Package]
	if !ok {
		return nil
	}
	st, ok := rec.Users[user]
	if !ok {
		return nil
	}

	if st.Archive != nil {
		for _, a := range st.Archive.Metadata.Activities {
			if a.Component == comp {
				return &types.ActivityInfo{
					Component: a.Component,
					Label:     a.Title,
					Launcher:  true,
					Enabled:   true,
					Archived:  true,
				}
			}
		}
		return nil
	}
	if !st.Installed {
		return nil
	}

	act, ok := rec.activity(comp.Class)
	if !ok || !rec.componentEnabled(st, act.Name, act.IsEnabled()) {
		return nil
	}
	return &types.ActivityInfo{
		Component: types.ComponentName{Package: rec.Name, Class: act.Name},
		Label:     act.Label,
		Launcher:  act.Launcher,
		Exported:  act.Exported,
		Enabled:   true,
	}
}

// LauncherActivities lists launchable activities of a user, including the
// synthesized entries of archived apps.
func (r *Registry) LauncherActivities(caller types.Caller, user int) []types.ActivityInfo {
	infos := r.ListPackages(caller, user, types.MatchArchived)
	out := []types.ActivityInfo{}
	for _, info := range infos {
		for _, a := range info.Activities {
			if a.Launcher && a.Enabled {
				out = append(out, a)
			}
		}
	}
	return out
}

func (r *Registry) userStateLocked(name string, user int) (*Record, *UserState, error) {
	rec, ok := r.packages[name]
	if !ok {
		return nil, nil, notFound(name)
	}
	st, ok := rec.Users[user]
	if !ok || (!st.Installed && st.Archive == nil) {
		return nil, nil, notFound(name)
	}
	return rec, st, nil
}
