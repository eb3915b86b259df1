package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/mcpforge/internal/hashstore"
)

var hashCmd = &cobra.Command{
	Use:   "hash",
	Short: "Inspect the hash stores that guard step outputs",
}

var hashCheckCmd = &cobra.Command{
	Use:   "check <store> <file>...",
	Short: "Compare files against a hash store",
	Long: `Compare files against the snapshot recorded in a hash store and print
SAME or CHANGED for each. Keys are the paths relative to --root, which
defaults to the directory of the store. --save records the new snapshot.`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		storePath := args[0]
		root, _ := cmd.Flags().GetString("root")
		if root == "" {
			root = filepath.Dir(storePath)
		}
		store := hashstore.New(root).WithLogger(cmdLogger(cmd)).Load(storePath)

		w := cmd.OutOrStdout()
		changed := 0
		for _, f := range args[1:] {
			same, err := store.IsSameFile(f)
			if err != nil {
				return err
			}
			status := "SAME"
			if !same {
				status = "CHANGED"
				changed++
			}
			fmt.Fprintf(w, "%-8s %s\n", status, f)
		}

		if save, _ := cmd.Flags().GetBool("save"); save {
			if err := store.Save(); err != nil {
				return err
			}
		}
		if strict, _ := cmd.Flags().GetBool("strict"); strict && changed > 0 {
			return fmt.Errorf("%d file(s) changed", changed)
		}
		return nil
	},
}

var hashFileCmd = &cobra.Command{
	Use:   "file <path>...",
	Short: "Print the sha1 of files or directory trees",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, p := range args {
			store := hashstore.New("")
			if err := store.AddFile(p, p); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n", store.Entries()[p], p)
		}
		return nil
	},
}

func init() {
	hashCheckCmd.Flags().String("root", "", "directory keys are relative to")
	hashCheckCmd.Flags().Bool("save", false, "record the current hashes in the store")
	hashCheckCmd.Flags().Bool("strict", false, "fail when any file changed")
	hashCmd.AddCommand(hashCheckCmd)
	hashCmd.AddCommand(hashFileCmd)
}
