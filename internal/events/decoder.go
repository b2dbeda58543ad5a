package events

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"curveLaunch/internal/model"
)

// Decoder defines a log decoder.
type Decoder interface {
	CanDecode(topic0 string) bool
	Decode(log model.LogRecord) (*model.TypedEvent, error)
}

// MarketDecoder decodes market event logs back into typed payloads.
type MarketDecoder struct {
	marketABI   abi.ABI
	topicToName map[string]string
}

// NewMarketDecoder builds a decoder for every market event.
func NewMarketDecoder() (*MarketDecoder, error) {
	marketABI, err := MarketABI()
	if err != nil {
		return nil, err
	}

	topicToName := make(map[string]string, len(marketABI.Events))
	for name, event := range marketABI.Events {
		topicToName[strings.ToLower(event.ID.Hex())] = name
	}

	return &MarketDecoder{
		marketABI:   marketABI,
		topicToName: topicToName,
	}, nil
}

// CanDecode checks if the topic0 is supported.
func (d *MarketDecoder) CanDecode(topic0 string) bool {
	if topic0 == "" {
		return false
	}
	_, ok := d.topicToName[strings.ToLower(topic0)]
	return ok
}

// Decode converts a LogRecord into a TypedEvent.
func (d *MarketDecoder) Decode(log model.LogRecord) (*model.TypedEvent, error) {
	if len(log.Topics) == 0 {
		return nil, fmt.Errorf("missing topics")
	}
	name, ok := d.topicToName[strings.ToLower(log.Topics[0])]
	if !ok {
		return nil, fmt.Errorf("unsupported topic0: %s", log.Topics[0])
	}
	if !common.IsHexAddress(log.Address) {
		return nil, fmt.Errorf("invalid emitter address: %s", log.Address)
	}

	event := d.marketABI.Events[name]
	f, err := readFields(event, log)
	if err != nil {
		return nil, err
	}

	var decoded interface{}
	switch name {
	case model.EventPoolCreated:
		decoded = model.PoolCreatedEvent{
			Pool:           f.asAddress("pool"),
			Creator:        f.asAddress("creator"),
			Name:           f.asString("name"),
			Ticker:         f.asString("ticker"),
			Decimals:       f.asUint8("decimals"),
			ReserveRatio:   f.asUint8("reserveRatio"),
			InitialReserve: f.asUint64("initialReserve"),
			Threshold:      f.asUint64("marketCapThresholdUsd"),
		}
	case model.EventBuyExecuted:
		decoded = model.BuyExecutedEvent{
			Pool:          f.asAddress("pool"),
			Buyer:         f.asAddress("buyer"),
			DepositAmount: f.asUint64("depositAmount"),
			TokensOut:     f.asUint64("tokensOut"),
			Fee:           f.asUint64("fee"),
			NewPrice:      f.asUint64("newPrice"),
			NewSupply:     f.asUint64("newSupply"),
		}
	case model.EventSellExecuted:
		decoded = model.SellExecutedEvent{
			Pool:       f.asAddress("pool"),
			Seller:     f.asAddress("seller"),
			SellAmount: f.asUint64("sellAmount"),
			DepositOut: f.asUint64("depositOut"),
			Fee:        f.asUint64("fee"),
			NewPrice:   f.asUint64("newPrice"),
			NewSupply:  f.asUint64("newSupply"),
		}
	case model.EventFeeUpdated:
		decoded = model.FeeUpdatedEvent{
			BuyFeeBps:  f.asUint16("buyFeeBps"),
			SellFeeBps: f.asUint16("sellFeeBps"),
		}
	case model.EventPoolSettingsUpdated:
		decoded = model.PoolSettingsUpdatedEvent{
			Pool:           f.asAddress("pool"),
			Threshold:      f.asUint64("marketCapThresholdUsd"),
			TradingEnabled: f.asBool("tradingEnabled"),
		}
	case model.EventAdminChanged:
		decoded = model.AdminChangedEvent{
			OldAdmin: f.asAddress("oldAdmin"),
			NewAdmin: f.asAddress("newAdmin"),
		}
	case model.EventTreasuryChanged:
		decoded = model.TreasuryChangedEvent{
			OldTreasury: f.asAddress("oldTreasury"),
			NewTreasury: f.asAddress("newTreasury"),
		}
	case model.EventAdminWithdrawal:
		decoded = model.AdminWithdrawalEvent{
			Pool:   f.asAddress("pool"),
			Admin:  f.asAddress("admin"),
			Amount: f.asUint64("amount"),
		}
	case model.EventOraclePriceUpdated:
		decoded = model.OraclePriceUpdatedEvent{
			PriceUSDCents: f.asUint64("priceUsdCents"),
			Source:        f.asString("source"),
		}
	case model.EventMigrationReady:
		decoded = model.MigrationReadyEvent{
			Pool:           f.asAddress("pool"),
			MarketCapCents: f.asUint64("marketCapCents"),
			ReserveAmount:  f.asUint64("reserveAmount"),
			TokenAmount:    f.asUint64("tokenAmount"),
			Forced:         f.asBool("forced"),
		}
	case model.EventMigrationCompleted:
		decoded = model.MigrationCompletedEvent{
			Pool:          f.asAddress("pool"),
			DexPool:       f.asString("dexPool"),
			ReserveAmount: f.asUint64("reserveAmount"),
			TokenAmount:   f.asUint64("tokenAmount"),
		}
	default:
		return nil, fmt.Errorf("unsupported event name: %s", name)
	}
	if f.err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, f.err)
	}

	return &model.TypedEvent{
		Seq:       log.Seq,
		Address:   log.Address,
		EventName: name,
		Timestamp: log.Timestamp,
		Decoded:   decoded,
		Raw:       &model.RawLogRef{Topic0: log.Topics[0], Data: log.Data},
	}, nil
}

// fields holds the named values of one log; the first type mismatch is
// kept in err and later reads return zero values.
type fields struct {
	values map[string]interface{}
	err    error
}

func readFields(event abi.Event, log model.LogRecord) (*fields, error) {
	indexedTopics, err := parseIndexedTopics(event, log.Topics)
	if err != nil {
		return nil, err
	}
	values := make(map[string]interface{}, len(event.Inputs))
	if len(indexedTopics) > 0 {
		if err := abi.ParseTopicsIntoMap(values, indexedArguments(event.Inputs), indexedTopics); err != nil {
			return nil, fmt.Errorf("parse topics: %w", err)
		}
	}
	data, err := hexutil.Decode(log.Data)
	if err != nil {
		return nil, fmt.Errorf("invalid data: %w", err)
	}
	if err := event.Inputs.NonIndexed().UnpackIntoMap(values, data); err != nil {
		return nil, fmt.Errorf("unpack %s: %w", event.Name, err)
	}
	return &fields{values: values}, nil
}

func (f *fields) get(name string) interface{} {
	v, ok := f.values[name]
	if !ok && f.err == nil {
		f.err = fmt.Errorf("missing field %s", name)
	}
	return v
}

func (f *fields) mismatch(name string, v interface{}) {
	if f.err == nil {
		f.err = fmt.Errorf("field %s has type %T", name, v)
	}
}

func (f *fields) asAddress(name string) common.Address {
	v := f.get(name)
	addr, ok := v.(common.Address)
	if !ok {
		f.mismatch(name, v)
	}
	return addr
}

func (f *fields) asString(name string) string {
	v := f.get(name)
	s, ok := v.(string)
	if !ok {
		f.mismatch(name, v)
	}
	return s
}

func (f *fields) asBool(name string) bool {
	v := f.get(name)
	b, ok := v.(bool)
	if !ok {
		f.mismatch(name, v)
	}
	return b
}

func (f *fields) asUint8(name string) uint8 {
	v := f.get(name)
	n, ok := v.(uint8)
	if !ok {
		f.mismatch(name, v)
	}
	return n
}

func (f *fields) asUint16(name string) uint16 {
	v := f.get(name)
	n, ok := v.(uint16)
	if !ok {
		f.mismatch(name, v)
	}
	return n
}

func (f *fields) asUint64(name string) uint64 {
	v := f.get(name)
	n, ok := v.(uint64)
	if !ok {
		f.mismatch(name, v)
	}
	return n
}

func parseIndexedTopics(event abi.Event, topics []string) ([]common.Hash, error) {
	indexedCount := len(indexedArguments(event.Inputs))
	if len(topics) != indexedCount+1 {
		return nil, fmt.Errorf("expected %d topics, got %d", indexedCount+1, len(topics))
	}
	return parseTopicHashes(topics[1:])
}

func parseTopicHashes(topics []string) ([]common.Hash, error) {
	out := make([]common.Hash, 0, len(topics))
	for _, topic := range topics {
		data, err := hexutil.Decode(topic)
		if err != nil {
			return nil, fmt.Errorf("invalid topic: %w", err)
		}
		if len(data) > 32 {
			return nil, fmt.Errorf("topic length %d", len(data))
		}
		out = append(out, common.BytesToHash(data))
	}
	return out, nil
}

func indexedArguments(args abi.Arguments) abi.Arguments {
	indexed := make(abi.Arguments, 0, len(args))
	for _, arg := range args {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	return indexed
}
