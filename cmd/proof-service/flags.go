package main

import (
	"github.com/urfave/cli/v2"

	"github.com/base-org/groth16-proof-service/proving"
	"github.com/base-org/groth16-proof-service/proving/storage"
)

const envVarPrefix = "PROOF_SERVICE"

func PrefixEnvVar(suffix string) []string {
	return []string{envVarPrefix + "_" + suffix}
}

var (
	PortFlag = &cli.IntFlag{
		Name:    "port",
		Usage:   "Port to run the RPC service on",
		EnvVars: PrefixEnvVar("PORT"),
		Value:   8555,
	}
	KeyPathFlag = &cli.StringFlag{
		Name:    "key-path",
		Usage:   "Directory proving keys are read from; keys may not leave it",
		EnvVars: PrefixEnvVar("KEY_PATH"),
		Value:   "keys/",
	}
	S3BucketFlag = &cli.StringFlag{
		Name:    "s3-bucket",
		Usage:   "Read proving keys from this S3 bucket instead of the local key path",
		EnvVars: PrefixEnvVar("S3_BUCKET"),
	}
	S3RegionFlag = &cli.StringFlag{
		Name:    "s3-region",
		Usage:   "Region of the S3 bucket",
		EnvVars: PrefixEnvVar("S3_REGION"),
		Value:   storage.DefaultRegion,
	}
	CircuitsFlag = &cli.StringSliceFlag{
		Name:    "circuit",
		Usage:   "Circuit to preload, as id=path (repeatable)",
		EnvVars: PrefixEnvVar("CIRCUITS"),
	}
	MaxConcurrentProofsFlag = &cli.Int64Flag{
		Name:    "max-concurrent-proofs",
		Usage:   "Number of proofs computed at the same time",
		EnvVars: PrefixEnvVar("MAX_CONCURRENT_PROOFS"),
		Value:   proving.DefaultMaxConcurrentProofs,
	}
	VerifyingKeyCacheFlag = &cli.IntFlag{
		Name:    "vkey-cache-size",
		Usage:   "Number of decoded verification keys kept for groth16_verify",
		EnvVars: PrefixEnvVar("VKEY_CACHE_SIZE"),
		Value:   proving.DefaultVerifyingKeyCacheSize,
	}
	ProverTasksFlag = &cli.IntFlag{
		Name:    "prover-tasks",
		Usage:   "Goroutines per multi-scalar multiplication, 0 uses all CPUs",
		EnvVars: PrefixEnvVar("PROVER_TASKS"),
	}
	EngineFlag = &cli.StringFlag{
		Name:    "engine",
		Usage:   "Prover implementation: go or rapidsnark",
		EnvVars: PrefixEnvVar("ENGINE"),
		Value:   "go",
	}
)

var Flags = []cli.Flag{
	KeyPathFlag,
	S3BucketFlag,
	S3RegionFlag,
	MaxConcurrentProofsFlag,
	VerifyingKeyCacheFlag,
	ProverTasksFlag,
	EngineFlag,
}

var ServeFlags = []cli.Flag{
	PortFlag,
	CircuitsFlag,
}

var (
	ZkeyFlag = &cli.StringFlag{
		Name:     "zkey",
		Usage:    "Proving key, relative to the key path",
		Required: true,
	}
	WitnessFlag = &cli.StringFlag{
		Name:     "witness",
		Usage:    "Witness file (.wtns or raw little endian elements)",
		Required: true,
	}
	ProofOutFlag = &cli.StringFlag{
		Name:  "proof",
		Usage: "Where to write the proof JSON",
		Value: "proof.json",
	}
	PublicOutFlag = &cli.StringFlag{
		Name:  "public",
		Usage: "Where to write the public signals JSON",
		Value: "public.json",
	}
	ZKProofFlag = &cli.StringFlag{
		Name:  "zkproof",
		Usage: "Proof and public signals combined in one JSON document",
	}
	VkeyFlag = &cli.StringFlag{
		Name:     "vkey",
		Usage:    "snarkjs verification key JSON",
		Required: true,
	}
	OutFlag = &cli.StringFlag{
		Name:     "out",
		Usage:    "Output file",
		Required: true,
	}
	FormatFlag = &cli.StringFlag{
		Name:  "format",
		Usage: "Verification key format: snarkjs or gnark",
		Value: "snarkjs",
	}
	FileFlag = &cli.StringFlag{
		Name:     "file",
		Usage:    "Local file to upload",
		Required: true,
	}
	KeyFlag = &cli.StringFlag{
		Name:     "key",
		Usage:    "Destination key in the key storage",
		Required: true,
	}
)
