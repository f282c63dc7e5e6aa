package models

import "errors"

type CartonStatus string

const (
	CartonStatusGenerated CartonStatus = "Generated"
	CartonStatusReceived  CartonStatus = "Received"
	CartonStatusShipped   CartonStatus = "Shipped"
)

func (s CartonStatus) Valid() bool {
	switch s {
	case CartonStatusGenerated, CartonStatusReceived, CartonStatusShipped:
		return true
	}
	return false
}

func ParseCartonStatus(str string) (CartonStatus, error) {
	s := CartonStatus(str)
	if !s.Valid() {
		return "", errors.New("invalid carton status")
	}
	return s, nil
}

type ScanEventType string

const (
	ScanEventGenerated ScanEventType = "GENERATED"
	ScanEventReceived  ScanEventType = "RECEIVED"
	ScanEventShipped   ScanEventType = "SHIPPED"
)

type BatchStatus string

const (
	BatchStatusOpen      BatchStatus = "Open"
	BatchStatusCompleted BatchStatus = "Completed"
)

type AggregateType string

const (
	AggregateTypeInventory AggregateType = "INVENTORY"
	AggregateTypeDemand    AggregateType = "DEMAND"
	AggregateTypeBatch     AggregateType = "BATCH"
)

type ResyncStatus string

const (
	ResyncStatusPending ResyncStatus = "PENDING"
	ResyncStatusDone    ResyncStatus = "DONE"
)

type HistoryActionType string

const (
	HistoryActionCreate   HistoryActionType = "*CREATE*"
	HistoryActionComplete HistoryActionType = "*COMPLETE*"
)
