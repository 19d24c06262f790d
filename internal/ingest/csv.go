package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"saldo/internal/core"
	"saldo/internal/log"
)

// File names looked up by LoadDir.
const (
	TransactionsFile = "transactions.csv"
	TransfersFile    = "transfers.csv"
	AnchorsFile      = "anchors.csv"
)

// Dataset is one snapshot of decoded records.
type Dataset struct {
	Transactions []core.Transaction
	Transfers    []core.Transfer
	Anchors      []core.BalanceAnchor
}

// ReadCSV reads all records of a comma separated stream. Rows may have
// fewer fields than the header.
func ReadCSV(r io.Reader) ([][]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = false
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	return rows, nil
}

func ReadTransactions(r io.Reader) ([]core.Transaction, error) {
	rows, err := ReadCSV(r)
	if err != nil {
		return nil, err
	}
	return DecodeTransactions(rows)
}

func ReadTransfers(r io.Reader) ([]core.Transfer, error) {
	rows, err := ReadCSV(r)
	if err != nil {
		return nil, err
	}
	return DecodeTransfers(rows)
}

func ReadAnchors(r io.Reader) ([]core.BalanceAnchor, error) {
	rows, err := ReadCSV(r)
	if err != nil {
		return nil, err
	}
	return DecodeAnchors(rows)
}

// LoadDir reads the three CSV files of dir. Missing files yield empty
// collections. Decoding problems are joined into err while the valid rows
// are still returned.
func LoadDir(dir string) (Dataset, error) {
	var (
		ds   Dataset
		errs []error
	)

	if err := readFile(dir, TransactionsFile, func(r io.Reader) (err error) {
		ds.Transactions, err = ReadTransactions(r)
		return err
	}); err != nil {
		errs = append(errs, err)
	}
	if err := readFile(dir, TransfersFile, func(r io.Reader) (err error) {
		ds.Transfers, err = ReadTransfers(r)
		return err
	}); err != nil {
		errs = append(errs, err)
	}
	if err := readFile(dir, AnchorsFile, func(r io.Reader) (err error) {
		ds.Anchors, err = ReadAnchors(r)
		return err
	}); err != nil {
		errs = append(errs, err)
	}

	return ds, errors.Join(errs...)
}

func readFile(dir, name string, decode func(io.Reader) error) error {
	path := filepath.Join(dir, name)
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	slog.Debug("Reading data file",
		log.FieldComponent, log.ComponentIngest,
		log.FieldOperation, log.OpRead,
		log.FieldFile, path)
	if err := decode(f); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}
