package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v3"
)

var capturePrefix = []byte("capture:")

// BadgerCatalog хранит каталог записей во встроенной BadgerDB
type BadgerCatalog struct {
	db      *badger.DB
	mutex   sync.RWMutex
	isReady bool
}

// NewBadgerCatalog открывает (или создает) базу в каталоге path
func NewBadgerCatalog(path string) (*BadgerCatalog, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil // Отключаем логирование BadgerDB

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть BadgerDB: %w", err)
	}
	return &BadgerCatalog{db: db, isReady: true}, nil
}

func captureKey(id string) []byte {
	return append(append([]byte(nil), capturePrefix...), id...)
}

func (bc *BadgerCatalog) ready() error {
	if !bc.isReady {
		return fmt.Errorf("хранилище не готово")
	}
	return nil
}

func (bc *BadgerCatalog) Save(ctx context.Context, rec *CaptureRecord) error {
	bc.mutex.RLock()
	defer bc.mutex.RUnlock()
	if err := bc.ready(); err != nil {
		return err
	}
	if err := prepare(rec); err != nil {
		return err
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("ошибка сериализации записи каталога: %w", err)
	}
	return bc.db.Update(func(txn *badger.Txn) error {
		return txn.Set(captureKey(rec.ID), data)
	})
}

func (bc *BadgerCatalog) Get(ctx context.Context, id string) (*CaptureRecord, error) {
	bc.mutex.RLock()
	defer bc.mutex.RUnlock()
	if err := bc.ready(); err != nil {
		return nil, err
	}

	var rec CaptureRecord
	err := bc.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(captureKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения записи %s: %w", id, err)
	}
	return &rec, nil
}

func (bc *BadgerCatalog) FindByName(ctx context.Context, name string) (*CaptureRecord, error) {
	recs, err := bc.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, rec := range recs {
		if rec.Name == name {
			return rec, nil
		}
	}
	return nil, ErrNotFound
}

func (bc *BadgerCatalog) List(ctx context.Context) ([]*CaptureRecord, error) {
	bc.mutex.RLock()
	defer bc.mutex.RUnlock()
	if err := bc.ready(); err != nil {
		return nil, err
	}

	var out []*CaptureRecord
	err := bc.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(capturePrefix); it.ValidForPrefix(capturePrefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			rec := &CaptureRecord{}
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, rec)
			}); err != nil {
				return err
			}
			out = append(out, rec)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка обхода каталога: %w", err)
	}
	sortNewestFirst(out)
	return out, nil
}

func (bc *BadgerCatalog) Delete(ctx context.Context, id string) error {
	bc.mutex.RLock()
	defer bc.mutex.RUnlock()
	if err := bc.ready(); err != nil {
		return err
	}

	err := bc.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(captureKey(id)); err != nil {
			return err
		}
		return txn.Delete(captureKey(id))
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrNotFound
	}
	return err
}

// Close закрывает базу
func (bc *BadgerCatalog) Close() error {
	bc.mutex.Lock()
	defer bc.mutex.Unlock()

	if !bc.isReady {
		return nil
	}
	bc.isReady = false
	return bc.db.Close()
}
