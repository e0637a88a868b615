package main

import (
	"encoding/hex"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dapperlabs/merklix"
	"github.com/dapperlabs/merklix/fs/osfs"
	"github.com/dapperlabs/merklix/hashfunc"
)

// openTree opens the tree at flagPrefix per the bound persistent flags.
// Every subcommand opens a fresh Tree and closes it before returning,
// consistent with spec §5's single-writer-per-store assumption: this
// CLI is not a long-lived server, just one operation per invocation.
func openTree() (*merklix.Tree, error) {
	h, err := resolveHash(flagHash)
	if err != nil {
		return nil, err
	}
	return merklix.Open(merklix.Config{
		Hash:       h,
		Bits:       flagBits,
		Prefix:     flagPrefix,
		Standalone: flagStandalone,
	}, merklix.Options{FS: osfs.New(), Log: log.Logger, Tracer: newTracer()})
}

func resolveHash(name string) (merklix.Hash, error) {
	switch name {
	case "blake2b256", "":
		return hashfunc.Blake2b256{}, nil
	default:
		return nil, fmt.Errorf("merklix: unknown hash %q", name)
	}
}

func decodeHex(name, s string) []byte {
	if s == "" {
		return nil
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		log.Fatal().Err(err).Msgf("merklix: %s is not valid hex", name)
	}
	return b
}

var flagKey, flagValue, flagRoot, flagProof string

func keyFlags(c *cobra.Command) {
	c.Flags().StringVar(&flagKey, "key", "", "key, hex-encoded")
	_ = c.MarkFlagRequired("key")
}

var putCmd = &cobra.Command{
	Use:   "put",
	Short: "insert or replace a key's value and commit",
	Run: func(cmd *cobra.Command, args []string) {
		tr, err := openTree()
		if err != nil {
			log.Fatal().Err(err).Msg("merklix: open")
		}
		defer tr.Close()

		if err := tr.Insert(decodeHex("key", flagKey), []byte(flagValue)); err != nil {
			log.Fatal().Err(err).Msg("merklix: insert")
		}
		root, err := tr.Commit()
		if err != nil {
			log.Fatal().Err(err).Msg("merklix: commit")
		}
		fmt.Println(hex.EncodeToString(root))
	},
}

var getCmd = &cobra.Command{
	Use:   "get",
	Short: "look up a key's value",
	Run: func(cmd *cobra.Command, args []string) {
		tr, err := openTree()
		if err != nil {
			log.Fatal().Err(err).Msg("merklix: open")
		}
		defer tr.Close()

		v, ok, err := tr.Get(decodeHex("key", flagKey))
		if err != nil {
			log.Fatal().Err(err).Msg("merklix: get")
		}
		if !ok {
			fmt.Println("absent")
			return
		}
		fmt.Println(string(v))
	},
}

var rmCmd = &cobra.Command{
	Use:   "rm",
	Short: "remove a key and commit",
	Run: func(cmd *cobra.Command, args []string) {
		tr, err := openTree()
		if err != nil {
			log.Fatal().Err(err).Msg("merklix: open")
		}
		defer tr.Close()

		if err := tr.Remove(decodeHex("key", flagKey)); err != nil {
			log.Fatal().Err(err).Msg("merklix: remove")
		}
		root, err := tr.Commit()
		if err != nil {
			log.Fatal().Err(err).Msg("merklix: commit")
		}
		fmt.Println(hex.EncodeToString(root))
	},
}

var commitCmd = &cobra.Command{
	Use:   "commit",
	Short: "commit the current working tree and print the resulting root hash",
	Run: func(cmd *cobra.Command, args []string) {
		tr, err := openTree()
		if err != nil {
			log.Fatal().Err(err).Msg("merklix: open")
		}
		defer tr.Close()

		root, err := tr.Commit()
		if err != nil {
			log.Fatal().Err(err).Msg("merklix: commit")
		}
		fmt.Println(hex.EncodeToString(root))
	},
}

var rootCmdLeaf = &cobra.Command{
	Use:   "root",
	Short: "print the current root hash",
	Run: func(cmd *cobra.Command, args []string) {
		tr, err := openTree()
		if err != nil {
			log.Fatal().Err(err).Msg("merklix: open")
		}
		defer tr.Close()

		root, err := tr.RootHash()
		if err != nil {
			log.Fatal().Err(err).Msg("merklix: root hash")
		}
		fmt.Println(hex.EncodeToString(root))
	},
}

var proveCmd = &cobra.Command{
	Use:   "prove",
	Short: "produce an inclusion/exclusion proof for a key against a root",
	Run: func(cmd *cobra.Command, args []string) {
		tr, err := openTree()
		if err != nil {
			log.Fatal().Err(err).Msg("merklix: open")
		}
		defer tr.Close()

		proofBytes, err := tr.Prove(decodeHex("root", flagRoot), decodeHex("key", flagKey))
		if err != nil {
			log.Fatal().Err(err).Msg("merklix: prove")
		}
		fmt.Println(hex.EncodeToString(proofBytes))
	},
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "verify a proof against a root hash",
	Run: func(cmd *cobra.Command, args []string) {
		tr, err := openTree()
		if err != nil {
			log.Fatal().Err(err).Msg("merklix: open")
		}
		defer tr.Close()

		code, value := tr.Verify(decodeHex("root", flagRoot), decodeHex("key", flagKey), decodeHex("proof", flagProof))
		fmt.Println(code)
		if value != nil {
			fmt.Println(string(value))
		}
	},
}

var destroyCmd = &cobra.Command{
	Use:   "destroy",
	Short: "close the store and remove its files",
	Run: func(cmd *cobra.Command, args []string) {
		tr, err := openTree()
		if err != nil {
			log.Fatal().Err(err).Msg("merklix: open")
		}
		if err := tr.Close(); err != nil {
			log.Fatal().Err(err).Msg("merklix: close")
		}
		if err := tr.Destroy(); err != nil {
			log.Fatal().Err(err).Msg("merklix: destroy")
		}
	},
}

func init() {
	keyFlags(putCmd)
	putCmd.Flags().StringVar(&flagValue, "value", "", "value bytes, as a plain string")
	_ = putCmd.MarkFlagRequired("value")

	keyFlags(getCmd)
	keyFlags(rmCmd)

	proveCmd.Flags().StringVar(&flagRoot, "root", "", "root hash, hex-encoded (empty means the current tip)")
	keyFlags(proveCmd)

	verifyCmd.Flags().StringVar(&flagRoot, "root", "", "root hash, hex-encoded")
	_ = verifyCmd.MarkFlagRequired("root")
	keyFlags(verifyCmd)
	verifyCmd.Flags().StringVar(&flagProof, "proof", "", "proof bytes, hex-encoded")
	_ = verifyCmd.MarkFlagRequired("proof")

	rootCmd.AddCommand(putCmd, getCmd, rmCmd, commitCmd, rootCmdLeaf, proveCmd, verifyCmd, destroyCmd)
}
