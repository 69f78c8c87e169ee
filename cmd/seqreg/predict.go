package main

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/born-ml/seqreg/internal/data"
	"github.com/born-ml/seqreg/internal/logger"
	"github.com/born-ml/seqreg/internal/trainer"
)

func predictCmd() *cli.Command {
	var (
		checkpoint string
		seed       uint64
		batchSize  int64
		maxLength  int64
		dataPath   string
		output     string
		format     string
	)

	flags := append(modelFlags(&checkpoint, &seed), dataFlags(&batchSize, &maxLength)...)
	flags = append(flags,
		&cli.StringFlag{Name: "data", Aliases: []string{"d"}, Usage: "CSV of sentence pairs (defaults to data.predict)", Destination: &dataPath},
		&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "output file (stdout when empty)", Destination: &output},
		&cli.StringFlag{Name: "format", Value: "csv", Usage: "output format: csv or jsonl", Destination: &format},
	)

	return &cli.Command{
		Name:  "predict",
		Usage: "Score sentence pairs with a checkpoint",
		Flags: flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			cfg := runCfg
			applyModelFlags(cmd, &cfg, checkpoint, seed)
			applyDataFlags(cmd, &cfg, batchSize, maxLength)
			cfg.Scheduler.Name = ""
			path := firstNonEmpty(dataPath, cfg.Data.Predict)
			if path == "" {
				return errors.New("predict: no data (set --data or data.predict)")
			}
			if format != "csv" && format != "jsonl" {
				return fmt.Errorf("predict: unknown format %q", format)
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			backend := newTapeBackend(log)
			backbone, err := buildModel(cfg, backend, log)
			if err != nil {
				return err
			}
			tok, err := loadTokenizer(cfg, backbone.Config(), log)
			if err != nil {
				return err
			}
			reader := newSplitReader(cfg, tok, backend, backbone.Config(), log)
			examples, err := reader.read(path, false)
			if err != nil {
				return err
			}
			loader, err := reader.loader(path, examples, false)
			if err != nil {
				return err
			}
			a, err := buildAdapter(cfg, backbone, 0)
			if err != nil {
				return err
			}
			tr, err := trainer.New(backend, trainer.DefaultConfig(), trainer.WithLogger(log))
			if err != nil {
				return err
			}
			preds, err := tr.Predict(ctx, a, loader)
			if err != nil {
				return err
			}
			if len(preds) != len(examples) {
				return fmt.Errorf("predict: %d predictions for %d examples", len(preds), len(examples))
			}

			var w io.Writer = os.Stdout
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			if err := writePredictions(w, format, examples, preds, cfg.Data.LabelScale); err != nil {
				return err
			}
			log.Info("predictions written", "count", len(preds), "output", firstNonEmpty(output, "stdout"))
			return nil
		},
	}
}

type predictionRecord struct {
	Index      int      `json:"index"`
	Sentence1  string   `json:"sentence1"`
	Sentence2  string   `json:"sentence2,omitempty"`
	Prediction float64  `json:"prediction"`
	Label      *float64 `json:"label,omitempty"`
}

// writePredictions maps scores back onto the label scale of the input.
func writePredictions(w io.Writer, format string, examples []data.Example, preds []float32, scale float64) error {
	if scale == 0 {
		scale = 1
	}
	records := make([]predictionRecord, len(preds))
	for i, p := range preds {
		ex := examples[i]
		records[i] = predictionRecord{
			Index:      i,
			Sentence1:  ex.First,
			Sentence2:  ex.Second,
			Prediction: float64(p) * scale,
		}
		if ex.HasLabel {
			label := ex.Label * scale
			records[i].Label = &label
		}
	}

	if format == "jsonl" {
		enc := json.NewEncoder(w)
		for _, r := range records {
			if err := enc.Encode(r); err != nil {
				return err
			}
		}
		return nil
	}

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"index", "sentence1", "sentence2", "prediction", "label"}); err != nil {
		return err
	}
	for _, r := range records {
		label := ""
		if r.Label != nil {
			label = formatFloat(*r.Label)
		}
		row := []string{strconv.Itoa(r.Index), r.Sentence1, r.Sentence2, formatFloat(r.Prediction), label}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatFloat(v float64) string {
	return strings.TrimSuffix(strconv.FormatFloat(v, 'f', 6, 64), ".000000")
}
