package entity

import (
	"encoding/json"
	"fmt"
)

// ReferenceKind tipo de documento origen de un movimiento.
type ReferenceKind string

const (
	ReferencePurchase ReferenceKind = "purchase"
	ReferenceSales    ReferenceKind = "sales"
	ReferenceTransfer ReferenceKind = "transfer"
	ReferenceCount    ReferenceKind = "count"
)

// Reference variante cerrada del documento origen. Solo los tipos de este paquete la implementan.
type Reference interface {
	Kind() ReferenceKind
	isReference()
}

// PurchaseRef orden de compra que origina una recepción.
type PurchaseRef struct {
	OrderID    string `json:"order_id"`
	SupplierID string `json:"supplier_id,omitempty"`
}

// SalesRef pedido de venta que origina una salida.
type SalesRef struct {
	OrderID    string `json:"order_id"`
	CustomerID string `json:"customer_id,omitempty"`
}

// TransferRef traslado entre bodegas.
type TransferRef struct {
	TransferID string `json:"transfer_id"`
}

// CountRef sesión de conteo cíclico.
type CountRef struct {
	SessionID string `json:"session_id"`
	CountedBy string `json:"counted_by,omitempty"`
}

func (PurchaseRef) Kind() ReferenceKind { return ReferencePurchase }
func (SalesRef) Kind() ReferenceKind    { return ReferenceSales }
func (TransferRef) Kind() ReferenceKind { return ReferenceTransfer }
func (CountRef) Kind() ReferenceKind    { return ReferenceCount }

func (PurchaseRef) isReference() {}
func (SalesRef) isReference()    {}
func (TransferRef) isReference() {}
func (CountRef) isReference()    {}

// EncodeReference serializa la referencia como (kind, payload JSON). nil -> ("", nil).
func EncodeReference(ref Reference) (ReferenceKind, []byte, error) {
	if ref == nil {
		return "", nil, nil
	}
	b, err := json.Marshal(ref)
	if err != nil {
		return "", nil, fmt.Errorf("encode reference: %w", err)
	}
	return ref.Kind(), b, nil
}

// DecodeReference reconstruye la variante a partir de (kind, payload JSON).
func DecodeReference(kind ReferenceKind, payload []byte) (Reference, error) {
	if kind == "" {
		return nil, nil
	}
	var (
		ref Reference
		err error
	)
	switch kind {
	case ReferencePurchase:
		var r PurchaseRef
		err = json.Unmarshal(payload, &r)
		ref = r
	case ReferenceSales:
		var r SalesRef
		err = json.Unmarshal(payload, &r)
		ref = r
	case ReferenceTransfer:
		var r TransferRef
		err = json.Unmarshal(payload, &r)
		ref = r
	case ReferenceCount:
		var r CountRef
		err = json.Unmarshal(payload, &r)
		ref = r
	default:
		return nil, fmt.Errorf("reference kind %q desconocido", kind)
	}
	if err != nil {
		return nil, fmt.Errorf("decode reference: %w", err)
	}
	return ref, nil
}
