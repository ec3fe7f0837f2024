package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"contractScope/internal/config"
	"contractScope/internal/ledger"
	"contractScope/internal/model"
)

// decodeOutcome classifies one record handled by the decode command.
type decodeOutcome int

const (
	outcomePassthrough decodeOutcome = iota
	outcomeDecoded
	outcomeFailed
)

func runDecode(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadDecode(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.In == "" {
		return fmt.Errorf("input path is required")
	}
	if cfg.Out == "" {
		return fmt.Errorf("output path is required")
	}
	if cfg.Errors == "" {
		return fmt.Errorf("errors path is required")
	}

	network, err := model.ParseNetworkID(cfg.Network)
	if err != nil {
		return err
	}

	inputFile, err := os.Open(cfg.In)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer inputFile.Close()

	outWriter, err := newJSONLWriter(cfg.Out, false)
	if err != nil {
		return err
	}
	defer outWriter.Close()

	errWriter, err := newJSONLWriter(cfg.Errors, false)
	if err != nil {
		return err
	}
	defer errWriter.Close()

	logger.Info("decode start",
		zap.String("network", network.String()),
		zap.String("in", cfg.In),
		zap.String("out", cfg.Out),
		zap.String("errors", cfg.Errors),
		zap.Bool("skip_failed", cfg.SkipFailed),
	)

	decoder := ledger.NewStateDecoder()

	scanner := bufio.NewScanner(inputFile)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 10*1024*1024)

	var total, decoded, skipped, failed int
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		total++

		var record model.EventRecord
		if err := json.Unmarshal(line, &record); err != nil {
			failed++
			writeDecodeError(errWriter, model.DecodeError{Network: network.String(), Error: err.Error()})
			continue
		}

		outcome, err := decodeRecord(decoder, network, &record)
		switch outcome {
		case outcomeDecoded:
			decoded++
		case outcomeFailed:
			failed++
			writeDecodeError(errWriter, decodeErrorFromRecord(record, err))
			if cfg.SkipFailed {
				continue
			}
		default:
			skipped++
		}

		if err := outWriter.Write(record); err != nil {
			return err
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scan input: %w", err)
	}

	logger.Info("decode complete",
		zap.Int("total", total),
		zap.Int("decoded", decoded),
		zap.Int("skipped", skipped),
		zap.Int("failed", failed),
	)

	return nil
}

// decodeRecord replaces the hex state of an undecoded contract action with its
// rendered form. Records that are not contract actions, or whose state is
// already decoded, pass through untouched.
func decodeRecord(decoder *ledger.StateDecoder, network model.NetworkID, record *model.EventRecord) (decodeOutcome, error) {
	if !record.IsContractAction() || record.StateDecoded {
		return outcomePassthrough, nil
	}
	if record.Network != "" && record.Network != network.String() {
		return outcomeFailed, fmt.Errorf("%w: record is for %s, expected %s", ledger.ErrNetworkMismatch, record.Network, network)
	}

	raw, err := ledger.DecodeHex(record.State)
	if err != nil {
		return outcomeFailed, err
	}
	rendered, err := decoder.Decode(raw, network)
	if err != nil {
		return outcomeFailed, err
	}

	record.State = rendered
	record.StateDecoded = true
	return outcomeDecoded, nil
}

type jsonlWriter struct {
	file   *os.File
	writer *bufio.Writer
}

func newJSONLWriter(path string, appendMode bool) (*jsonlWriter, error) {
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create dir: %w", err)
		}
	}

	flags := os.O_CREATE | os.O_WRONLY
	if appendMode {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}

	file, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}

	return &jsonlWriter{
		file:   file,
		writer: bufio.NewWriter(file),
	}, nil
}

func (w *jsonlWriter) Write(value interface{}) error {
	line, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	if _, err := w.writer.Write(line); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	if err := w.writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("write newline: %w", err)
	}
	return nil
}

func (w *jsonlWriter) Close() error {
	if w == nil {
		return nil
	}
	if err := w.writer.Flush(); err != nil {
		w.file.Close()
		return err
	}
	return w.file.Close()
}

func decodeErrorFromRecord(record model.EventRecord, err error) model.DecodeError {
	return model.DecodeError{
		SessionID:  record.SessionID,
		Network:    record.Network,
		Address:    record.Address,
		TypeName:   record.TypeName,
		ChainState: record.ChainState,
		Error:      err.Error(),
	}
}

func writeDecodeError(writer *jsonlWriter, errRecord model.DecodeError) {
	if writer == nil {
		return
	}
	_ = writer.Write(errRecord)
}
