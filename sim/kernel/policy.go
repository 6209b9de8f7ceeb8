package kernel

import "fmt"

// DispatchPolicy switches the optional behaviors of EnergyMRTKernel.
//
// When a task end leaves a core empty, the kernel first tries to pull a
// task into it for good (from a BIG core onto a LITTLE one, then from a
// loaded sibling) and only then borrows one temporarily. The first two
// steps run only with MigrateAfterEnd, which is off by default.
type DispatchPolicy struct {
	// Balance moves a placement from a busy core to a free core of the
	// same island that costs the same power.
	Balance bool
	// LeaveLastLittleFree keeps the last LITTLE core for tasks that fit
	// nowhere else on the LITTLE island.
	LeaveLastLittleFree bool
	// Migration allows tasks to move between cores after placement.
	Migration bool
	// CBSYield makes an envelope whose task ended give way to the other
	// ready tasks of its core while its virtual time runs out.
	CBSYield bool
	// TemporaryMigrationVTime borrows a task from a sibling core when an
	// envelope's virtual time ends and nothing else can be moved in.
	TemporaryMigrationVTime bool
	// TemporaryMigrationEnd does the same when a core is left empty.
	TemporaryMigrationEnd bool
	// CBSEnveloping wraps every plain task in a hard CBS sized to its
	// WCET at the speed of the core it is placed on.
	CBSEnveloping bool
	// MigrateAfterVirtualTimeEnd pulls a task into a core whose last
	// envelope reached its virtual time.
	MigrateAfterVirtualTimeEnd bool
	// MigrateAfterEnd pulls a task into a core left empty by a task end.
	MigrateAfterEnd bool
}

// DefaultDispatchPolicy returns the policy used when none is configured.
func DefaultDispatchPolicy() DispatchPolicy {
	return DispatchPolicy{
		Balance:                    true,
		Migration:                  true,
		TemporaryMigrationVTime:    true,
		TemporaryMigrationEnd:      true,
		CBSEnveloping:              true,
		MigrateAfterVirtualTimeEnd: true,
	}
}

// Validate rejects flags whose prerequisites are off.
func (p DispatchPolicy) Validate() error {
	need := func(flag string, on bool, req string, reqOn bool) error {
		if on && !reqOn {
			return fmt.Errorf("%s requires %s: %w", flag, req, ErrInvalidPolicy)
		}
		return nil
	}
	for _, err := range []error{
		need("migrate_after_end", p.MigrateAfterEnd, "migration", p.Migration),
		need("migrate_after_vtime_end", p.MigrateAfterVirtualTimeEnd, "migration", p.Migration),
		need("migrate_after_vtime_end", p.MigrateAfterVirtualTimeEnd, "cbs_enveloping", p.CBSEnveloping),
		need("temporary_migration_end", p.TemporaryMigrationEnd, "migration", p.Migration),
		need("temporary_migration_vtime", p.TemporaryMigrationVTime, "migration", p.Migration),
		need("temporary_migration_vtime", p.TemporaryMigrationVTime, "cbs_enveloping", p.CBSEnveloping),
		need("cbs_yield", p.CBSYield, "cbs_enveloping", p.CBSEnveloping),
	} {
		if err != nil {
			return err
		}
	}
	return nil
}
