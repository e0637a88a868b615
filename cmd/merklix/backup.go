package main

import (
	"encoding/hex"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/vmihailenco/msgpack/v4"
)

// kvPair is one entry of the backup format: a flat msgpack array of
// (key, value) pairs, distinct from the fixed-width binary node codec
// (§6.2), which a backup never touches directly — export/import only
// ever goes through the public Get/Insert/Values API.
type kvPair struct {
	Key   []byte
	Value []byte
}

var flagFile string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "write every committed (key, value) pair to a msgpack backup file",
	Run: func(cmd *cobra.Command, args []string) {
		tr, err := openTree()
		if err != nil {
			log.Fatal().Err(err).Msg("merklix: open")
		}
		defer tr.Close()

		var pairs []kvPair
		err = tr.Values(func(k, v []byte) error {
			pairs = append(pairs, kvPair{Key: append([]byte{}, k...), Value: append([]byte{}, v...)})
			return nil
		})
		if err != nil {
			log.Fatal().Err(err).Msg("merklix: values")
		}

		buf, err := msgpack.Marshal(pairs)
		if err != nil {
			log.Fatal().Err(err).Msg("merklix: marshal backup")
		}
		if err := os.WriteFile(flagFile, buf, 0644); err != nil {
			log.Fatal().Err(err).Msg("merklix: write backup")
		}
		log.Info().Int("pairs", len(pairs)).Str("file", flagFile).Msg("merklix: exported")
	},
}

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "insert every (key, value) pair from a msgpack backup file and commit",
	Run: func(cmd *cobra.Command, args []string) {
		buf, err := os.ReadFile(flagFile)
		if err != nil {
			log.Fatal().Err(err).Msg("merklix: read backup")
		}
		var pairs []kvPair
		if err := msgpack.Unmarshal(buf, &pairs); err != nil {
			log.Fatal().Err(err).Msg("merklix: unmarshal backup")
		}

		tr, err := openTree()
		if err != nil {
			log.Fatal().Err(err).Msg("merklix: open")
		}
		defer tr.Close()

		for _, p := range pairs {
			if err := tr.Insert(p.Key, p.Value); err != nil {
				log.Fatal().Err(err).Msg("merklix: insert")
			}
		}
		root, err := tr.Commit()
		if err != nil {
			log.Fatal().Err(err).Msg("merklix: commit")
		}
		log.Info().Int("pairs", len(pairs)).Str("root", hex.EncodeToString(root)).Msg("merklix: imported")
	},
}

func init() {
	exportCmd.Flags().StringVar(&flagFile, "file", "", "backup file path")
	_ = exportCmd.MarkFlagRequired("file")
	importCmd.Flags().StringVar(&flagFile, "file", "", "backup file path")
	_ = importCmd.MarkFlagRequired("file")

	rootCmd.AddCommand(exportCmd, importCmd)
}
