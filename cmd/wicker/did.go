package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/Azure/go-autorest/autorest/to"
	"github.com/ayrten/wicker/did"
	"github.com/ayrten/wicker/didkey"
	"github.com/urfave/cli/v2"
)

var didCmd = &cli.Command{
	Name:  "did",
	Usage: "Identity management commands",
	Subcommands: []*cli.Command{
		didNewCmd,
		didListCmd,
		didUseCmd,
		didRotateKeyCmd,
		didSetMetadataCmd,
		didQualifyCmd,
		didImportCmd,
	},
}

func optFlag(cmd *cli.Context, name string) *string {
	if !cmd.IsSet(name) {
		return nil
	}
	return to.StringPtr(cmd.String(name))
}

var didNewCmd = &cli.Command{
	Name:  "new",
	Usage: "Create new DID",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "did", Usage: "known DID for new wallet instance"},
		&cli.StringFlag{Name: "seed", Usage: "seed for the DID keypair (UTF-8, base64 or hex)"},
		&cli.StringFlag{Name: "method", Usage: "method name to create a fully qualified DID"},
		&cli.StringFlag{Name: "metadata", Usage: "DID metadata"},
	},
	Action: func(cmd *cli.Context) error {
		s, err := newSession(cmd)
		if err != nil {
			return err
		}
		defer s.close()

		d, vk, err := s.registry.Create(did.CreateArgs{
			Did:      optFlag(cmd, "did"),
			Seed:     optFlag(cmd, "seed"),
			Method:   optFlag(cmd, "method"),
			Metadata: optFlag(cmd, "metadata"),
		})
		if err != nil {
			return err
		}

		fmt.Printf("Did %q has been created with %q verkey\n", d, didkey.AbbreviateVerkey(d, vk))
		return nil
	},
}

var didListCmd = &cli.Command{
	Name:  "list",
	Usage: "List DIDs stored in the wallet",
	Action: func(cmd *cli.Context) error {
		s, err := newSession(cmd)
		if err != nil {
			return err
		}
		defer s.close()

		recs, err := s.registry.List()
		if err != nil {
			return err
		}

		if len(recs) == 0 {
			fmt.Println("There are no dids")
			return nil
		}

		tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "Did\tVerkey\tMetadata")
		for _, rec := range recs {
			meta := ""
			if rec.Metadata != nil {
				meta = *rec.Metadata
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\n", rec.Did, didkey.AbbreviateVerkey(rec.Did, rec.Verkey), meta)
		}
		tw.Flush()

		if active, err := s.activeDid(); err == nil {
			fmt.Printf("Current did %q\n", active)
		}

		return nil
	},
}

var didUseCmd = &cli.Command{
	Name:      "use",
	Usage:     "Use DID",
	ArgsUsage: "<did>",
	Action: func(cmd *cli.Context) error {
		d := cmd.Args().First()
		if d == "" {
			return fmt.Errorf("did argument is required")
		}

		s, err := newSession(cmd)
		if err != nil {
			return err
		}
		defer s.close()

		if _, err := s.registry.Get(d); err != nil {
			return err
		}

		if err := s.setActiveDid(d); err != nil {
			return err
		}

		fmt.Printf("Did %q has been set as active\n", d)
		return nil
	},
}

var didRotateKeyCmd = &cli.Command{
	Name:  "rotate-key",
	Usage: "Rotate keys for the active DID",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "did", Usage: "DID to rotate, defaults to the active DID"},
		&cli.StringFlag{Name: "seed", Usage: "seed for the new keypair, random if not given (UTF-8, base64 or hex)"},
		&cli.BoolFlag{Name: "resume", Usage: "resume an interrupted rotation"},
	},
	Action: func(cmd *cli.Context) error {
		s, err := newSession(cmd)
		if err != nil {
			return err
		}
		defer s.close()

		if s.engine == nil {
			return fmt.Errorf("no ledger configured, set --ledger-url or ledger_url in wicker.toml")
		}

		d, err := s.didFrom(cmd)
		if err != nil {
			return err
		}

		res, err := s.engine.RotateKey(cmd.Context, d, optFlag(cmd, "seed"), cmd.Bool("resume"))
		if err != nil {
			return err
		}

		fmt.Printf("Verkey for did %q has been updated\n", res.Did)
		fmt.Printf("New verkey is %q\n", didkey.AbbreviateVerkey(res.Did, res.NewVerkey))
		if !res.LedgerUpdated {
			fmt.Println("The DID is not registered on the ledger; only wallet keys were rotated")
		}
		return nil
	},
}

var didSetMetadataCmd = &cli.Command{
	Name:  "set-metadata",
	Usage: "Attach metadata to a DID",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "did", Usage: "DID to annotate, defaults to the active DID"},
		&cli.StringFlag{Name: "metadata", Required: true},
	},
	Action: func(cmd *cli.Context) error {
		s, err := newSession(cmd)
		if err != nil {
			return err
		}
		defer s.close()

		d, err := s.didFrom(cmd)
		if err != nil {
			return err
		}

		if err := s.registry.SetMetadata(d, cmd.String("metadata")); err != nil {
			return err
		}

		fmt.Printf("Metadata has been saved for did %q\n", d)
		return nil
	},
}

var didQualifyCmd = &cli.Command{
	Name:  "qualify",
	Usage: "Update a stored DID to its fully qualified form",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "did", Usage: "DID to qualify, defaults to the active DID"},
		&cli.StringFlag{Name: "method", Required: true, Usage: "method to apply to the DID"},
	},
	Action: func(cmd *cli.Context) error {
		s, err := newSession(cmd)
		if err != nil {
			return err
		}
		defer s.close()

		d, err := s.didFrom(cmd)
		if err != nil {
			return err
		}

		qualified, err := s.registry.Qualify(d, cmd.String("method"))
		if err != nil {
			return err
		}

		// keep the active pointer in step with the rename
		if active, err := s.activeDid(); err == nil && active == d {
			if err := s.setActiveDid(qualified); err != nil {
				return err
			}
		}

		fmt.Printf("Fully qualified did %q\n", qualified)
		return nil
	},
}

var didImportCmd = &cli.Command{
	Name:      "import",
	Usage:     "Import DIDs from a file into the wallet",
	ArgsUsage: "<file>",
	Action: func(cmd *cli.Context) error {
		path := cmd.Args().First()
		if path == "" {
			return fmt.Errorf("file argument is required")
		}

		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()

		s, err := newSession(cmd)
		if err != nil {
			return err
		}
		defer s.close()

		created, err := s.registry.Import(f)
		for _, pair := range created {
			fmt.Printf("Did %q has been created with %q verkey\n", pair[0], didkey.AbbreviateVerkey(pair[0], pair[1]))
		}
		if err != nil {
			return err
		}

		fmt.Println("DIDs import finished")
		return nil
	},
}
