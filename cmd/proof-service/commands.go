package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/ethereum/go-ethereum/log"
	"github.com/iden3/go-rapidsnark/types"
	"github.com/urfave/cli/v2"

	"github.com/base-org/groth16-proof-service/circuits"
	"github.com/base-org/groth16-proof-service/groth16"
	"github.com/base-org/groth16-proof-service/proving"
)

var Commands = []*cli.Command{
	{
		Name:   "serve",
		Usage:  "Run the JSON-RPC service",
		Flags:  ServeFlags,
		Action: curryMain(Version),
	},
	{
		Name:   "prove",
		Usage:  "Prove a witness against a proving key",
		Flags:  []cli.Flag{ZkeyFlag, WitnessFlag, ProofOutFlag, PublicOutFlag, ZKProofFlag},
		Action: proveCommand,
	},
	{
		Name:   "verify",
		Usage:  "Verify a proof against a verification key",
		Flags:  []cli.Flag{VkeyFlag, ProofOutFlag, PublicOutFlag, ZKProofFlag},
		Action: verifyCommand,
	},
	{
		Name:   "public-size",
		Usage:  "Print the buffer size that fits the public signals of a proving key",
		Flags:  []cli.Flag{ZkeyFlag},
		Action: publicSizeCommand,
	},
	{
		Name:   "export-vk",
		Usage:  "Write the verification key embedded in a proving key",
		Flags:  []cli.Flag{ZkeyFlag, OutFlag, FormatFlag},
		Action: exportVkCommand,
	},
	{
		Name:   "put-key",
		Usage:  "Copy a local proving key into the key storage",
		Flags:  []cli.Flag{FileFlag, KeyFlag},
		Action: putKeyCommand,
	},
}

func proveCommand(cliCtx *cli.Context) error {
	service, err := newService(cliCtx, nil)
	if err != nil {
		return err
	}
	wtns, err := os.ReadFile(cliCtx.String(WitnessFlag.Name))
	if err != nil {
		return err
	}
	resp, err := service.Groth16Prove(cliCtx.Context, cliCtx.String(ZkeyFlag.Name), wtns, proving.BufferLimits{})
	if err != nil {
		return err
	}

	if out := cliCtx.String(ZKProofFlag.Name); out != "" {
		proof, err := groth16.ParseProof([]byte(resp.Proof))
		if err != nil {
			return err
		}
		signals, err := groth16.ParsePublicSignalsJSON([]byte(resp.PublicSignals))
		if err != nil {
			return err
		}
		data, err := json.MarshalIndent(groth16.ZKProof(proof, signals), "", "  ")
		if err != nil {
			return err
		}
		log.Info("Writing proof", "zkproof", out)
		return os.WriteFile(out, data, 0o644)
	}

	log.Info("Writing proof", "proof", cliCtx.String(ProofOutFlag.Name), "public", cliCtx.String(PublicOutFlag.Name))
	if err := os.WriteFile(cliCtx.String(ProofOutFlag.Name), []byte(resp.Proof), 0o644); err != nil {
		return err
	}
	return os.WriteFile(cliCtx.String(PublicOutFlag.Name), []byte(resp.PublicSignals), 0o644)
}

// readProof returns the proof and public signals JSON, either from a combined
// zkproof document or from the separate files.
func readProof(cliCtx *cli.Context) ([]byte, []byte, error) {
	if in := cliCtx.String(ZKProofFlag.Name); in != "" {
		data, err := os.ReadFile(in)
		if err != nil {
			return nil, nil, err
		}
		var zk types.ZKProof
		if err := json.Unmarshal(data, &zk); err != nil {
			return nil, nil, fmt.Errorf("%w: %w", groth16.ErrMalformedProof, err)
		}
		if zk.Proof == nil {
			return nil, nil, fmt.Errorf("%w: %s holds no proof", groth16.ErrMalformedProof, in)
		}
		proofJSON, err := json.Marshal(zk.Proof)
		if err != nil {
			return nil, nil, err
		}
		publicJSON, err := json.Marshal(zk.PubSignals)
		if err != nil {
			return nil, nil, err
		}
		return proofJSON, publicJSON, nil
	}
	proofJSON, err := os.ReadFile(cliCtx.String(ProofOutFlag.Name))
	if err != nil {
		return nil, nil, err
	}
	publicJSON, err := os.ReadFile(cliCtx.String(PublicOutFlag.Name))
	if err != nil {
		return nil, nil, err
	}
	return proofJSON, publicJSON, nil
}

func verifyCommand(cliCtx *cli.Context) error {
	service, err := newService(cliCtx, nil)
	if err != nil {
		return err
	}
	vkJSON, err := os.ReadFile(cliCtx.String(VkeyFlag.Name))
	if err != nil {
		return err
	}
	proofJSON, publicJSON, err := readProof(cliCtx)
	if err != nil {
		return err
	}
	ok, err := service.Groth16Verify(cliCtx.Context, vkJSON, proofJSON, publicJSON)
	if err != nil {
		return err
	}
	if !ok {
		return cli.Exit("proof is invalid", 1)
	}
	fmt.Fprintln(cliCtx.App.Writer, "proof is valid")
	return nil
}

func publicSizeCommand(cliCtx *cli.Context) error {
	service, err := newService(cliCtx, nil)
	if err != nil {
		return err
	}
	size, err := service.PublicBufferSize(cliCtx.Context, cliCtx.String(ZkeyFlag.Name))
	if err != nil {
		return err
	}
	fmt.Fprintln(cliCtx.App.Writer, size)
	return nil
}

func exportVkCommand(cliCtx *cli.Context) error {
	service, err := newService(cliCtx, nil)
	if err != nil {
		return err
	}
	path := cliCtx.String(ZkeyFlag.Name)
	h, err := service.LoadKey(cliCtx.Context, circuits.ID(path), path)
	if err != nil {
		return err
	}
	vk := h.VerifyingKey()

	var buf bytes.Buffer
	switch format := cliCtx.String(FormatFlag.Name); format {
	case "snarkjs":
		data, err := json.MarshalIndent(vk, "", "  ")
		if err != nil {
			return err
		}
		buf.Write(data)
	case "gnark":
		if _, err := vk.WriteGnark(&buf); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown verification key format %q", format)
	}
	log.Info("Writing verification key", "zkey", path, "out", cliCtx.String(OutFlag.Name), "format", cliCtx.String(FormatFlag.Name))
	return os.WriteFile(cliCtx.String(OutFlag.Name), buf.Bytes(), 0o644)
}

func putKeyCommand(cliCtx *cli.Context) error {
	store, err := newStorage(cliCtx)
	if err != nil {
		return err
	}
	in, err := os.Open(cliCtx.String(FileFlag.Name))
	if err != nil {
		return err
	}
	defer in.Close()

	key := cliCtx.String(KeyFlag.Name)
	w, err := store.Writer(cliCtx.Context, key)
	if err != nil {
		return err
	}
	n, err := io.Copy(w, in)
	if err != nil {
		_ = w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	log.Info("Stored proving key", "key", key, "bytes", n)
	return nil
}
