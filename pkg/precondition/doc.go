// Package precondition evaluates the preConditions blocks of changelogs and
// changesets.
//
// Checks never return Go errors for ordinary outcomes. Each evaluation yields
// a Result that is Passed, Failed (the condition does not hold) or Errored (the
// condition could not be determined). A Container pairs the checks with the
// onFail and onError policies and turns the result into an Action for the
// caller:
//
//	HALT      stop the update with a FailedError or ErrorError
//	CONTINUE  skip the changeset; it will be retried on the next update
//	MARK_RAN  record the changeset as ran without executing it
//	WARN      log a warning and run the changeset anyway
//
// Example usage:
//
//	c, err := precondition.Load(n)
//	if err != nil {
//		return err
//	}
//
//	action, err := c.Evaluate(ctx, precondition.Env{DB: db})
//	switch action {
//	case precondition.Halt:
//		return err
//	case precondition.Skip:
//		// leave the changeset for a later run
//	}
package precondition
