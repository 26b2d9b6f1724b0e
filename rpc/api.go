package api

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/log"

	"github.com/base-org/groth16-proof-service/circuits"
	"github.com/base-org/groth16-proof-service/groth16"
	"github.com/base-org/groth16-proof-service/proving"
)

const Namespace = "groth16"

// Groth16 is the JSON-RPC face of a proving.Service.
type Groth16 struct {
	service *proving.Service
}

func NewGroth16(service *proving.Service) *Groth16 {
	return &Groth16{
		service: service,
	}
}

func (g *Groth16) Prove(ctx context.Context, circuitId string, witness hexutil.Bytes) (*proving.ProveResponse, error) {
	log.Info("Proving for groth16_prove call", "circuit", circuitId, "witnessBytes", len(witness))
	resp, err := g.service.Prove(ctx, circuits.ID(circuitId), witness)
	return resp, toRPCError(err)
}

func (g *Groth16) ProveWithKeyPath(ctx context.Context, zkeyPath string, witness hexutil.Bytes, limits *proving.BufferLimits) (*proving.ProveResponse, error) {
	log.Info("Proving for groth16_proveWithKeyPath call", "zkeyPath", zkeyPath, "witnessBytes", len(witness))
	var l proving.BufferLimits
	if limits != nil {
		l = *limits
	}
	resp, err := g.service.Groth16Prove(ctx, zkeyPath, witness, l)
	return resp, toRPCError(err)
}

func (g *Groth16) Verify(ctx context.Context, verificationKey, proof, publicSignals string) (bool, error) {
	ok, err := g.service.Groth16Verify(ctx, []byte(verificationKey), []byte(proof), []byte(publicSignals))
	return ok, toRPCError(err)
}

func (g *Groth16) VerifyCircuit(ctx context.Context, circuitId, proof, publicSignals string) (bool, error) {
	ok, err := g.service.Verify(ctx, circuits.ID(circuitId), []byte(proof), []byte(publicSignals))
	return ok, toRPCError(err)
}

func (g *Groth16) PublicBufferSize(ctx context.Context, zkeyPath string) (int, error) {
	size, err := g.service.PublicBufferSize(ctx, zkeyPath)
	return size, toRPCError(err)
}

func (g *Groth16) LoadKey(ctx context.Context, circuitId, path string) (proving.State, error) {
	log.Info("Loading key for groth16_loadKey call", "circuit", circuitId, "path", path)
	id := circuits.ID(circuitId)
	if _, err := g.service.LoadKey(ctx, id, path); err != nil {
		return g.service.Status(id), toRPCError(err)
	}
	return g.service.Status(id), nil
}

func (g *Groth16) Status(circuitId string) proving.State {
	return g.service.Status(circuits.ID(circuitId))
}

func (g *Groth16) VerificationKey(circuitId string) (*groth16.VerifyingKey, error) {
	vk, err := g.service.VerifyingKey(circuits.ID(circuitId))
	return vk, toRPCError(err)
}

// Error carries a proving.Error across JSON-RPC with a code per kind.
type Error struct {
	err *proving.Error
}

type ErrorData struct {
	Kind      string `json:"kind"`
	CircuitId string `json:"circuitId,omitempty"`
	Op        string `json:"op"`
}

const (
	CodeInternal      = -32000
	CodeConfiguration = -32001
	CodeDecoding      = -32002
	CodeValidation    = -32003
	CodeComputation   = -32004
	CodeCanceled      = -32005
)

func (e *Error) Error() string {
	return e.err.Error()
}

func (e *Error) Unwrap() error {
	return e.err
}

func (e *Error) ErrorCode() int {
	switch e.err.Kind {
	case proving.KindConfiguration:
		return CodeConfiguration
	case proving.KindDecoding:
		return CodeDecoding
	case proving.KindValidation:
		return CodeValidation
	case proving.KindComputation:
		return CodeComputation
	case proving.KindCanceled:
		return CodeCanceled
	default:
		return CodeInternal
	}
}

func (e *Error) ErrorData() interface{} {
	return ErrorData{
		Kind:      e.err.Kind.String(),
		CircuitId: string(e.err.Circuit),
		Op:        e.err.Op,
	}
}

func toRPCError(err error) error {
	if err == nil {
		return nil
	}
	var perr *proving.Error
	if errors.As(err, &perr) {
		log.Warn("Request failed", "op", perr.Op, "circuit", perr.Circuit, "kind", perr.Kind, "error", perr.Err)
		return &Error{err: perr}
	}
	return err
}
