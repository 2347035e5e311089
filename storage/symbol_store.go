package storage

import (
	"context"
	_ "embed"

	"github.com/cockroachdb/errors"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/riven-blade/pricedash/pkg/logger"
)

// SymbolsKey 交易对列表的存储key
const SymbolsKey = "vue3-crypto-currencies"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

//go:embed defaultpair.json
var defaultPairJSON []byte

// Symbol 面板上展示的交易对
type Symbol struct {
	Symbol string `json:"symbol"`
	Base   string `json:"base,omitempty"`
	Quote  string `json:"quote,omitempty"`
	Name   string `json:"name,omitempty"`
	Img    string `json:"img"`
}

// SymbolStore 持久化的交易对列表, 读不到时退回内置默认列表
type SymbolStore struct {
	kv       KVStorage
	defaults []Symbol
}

// NewSymbolStore 创建交易对存储
func NewSymbolStore(kv KVStorage) (*SymbolStore, error) {
	if kv == nil {
		return nil, errors.New("kv storage is nil")
	}
	var defaults []Symbol
	if err := json.Unmarshal(defaultPairJSON, &defaults); err != nil {
		return nil, errors.Wrap(err, "decode bundled default pairs")
	}
	return &SymbolStore{kv: kv, defaults: defaults}, nil
}

// Defaults 内置默认列表的副本
func (s *SymbolStore) Defaults() []Symbol {
	out := make([]Symbol, len(s.defaults))
	copy(out, s.defaults)
	return out
}

// Load 读取已保存的列表. key不存在或内容无法解析时返回默认列表
func (s *SymbolStore) Load(ctx context.Context) []Symbol {
	raw, err := s.kv.Get(ctx, SymbolsKey)
	if err != nil {
		if !IsNotFound(err) {
			logger.Ctx(ctx).Warn("load symbols failed, using defaults", zap.Error(err))
		}
		return s.Defaults()
	}

	var symbols []Symbol
	if err := json.Unmarshal(raw, &symbols); err != nil {
		logger.Ctx(ctx).Warn("stored symbols unreadable, using defaults",
			zap.String("key", SymbolsKey),
			zap.Error(err))
		return s.Defaults()
	}
	return symbols
}

// Save 覆盖保存列表
func (s *SymbolStore) Save(ctx context.Context, symbols []Symbol) error {
	if symbols == nil {
		symbols = []Symbol{}
	}
	raw, err := json.Marshal(symbols)
	if err != nil {
		return errors.Wrap(err, "encode symbols")
	}
	if err := s.kv.Set(ctx, SymbolsKey, raw, 0); err != nil {
		return errors.Wrap(err, "save symbols")
	}
	return nil
}

// Reset 用默认列表覆盖已保存的列表
func (s *SymbolStore) Reset(ctx context.Context) ([]Symbol, error) {
	defaults := s.Defaults()
	if err := s.Save(ctx, defaults); err != nil {
		return nil, err
	}
	return defaults, nil
}
