package cmd

import "fmt"

// RunCleanup removes every managed kernel object and clears the declared
// topology. Objects that are already gone are not errors; objects that
// refuse to die are reported after everything else has been attempted.
func RunCleanup(configFile string) error {
	e, err := newEnv(configFile)
	if err != nil {
		return err
	}
	defer e.close()

	if err := e.reconciler().CleanupAll(); err != nil {
		return err
	}
	fmt.Println("All managed objects removed")
	return nil
}
