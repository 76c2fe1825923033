package notary

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/asn1"
	"fmt"
	"io"
	"math/big"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/cryptobyte"
	cbasn1 "golang.org/x/crypto/cryptobyte/asn1"
)

var oidSHA256 = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 1}

// Requester builds a DER encoded RFC 3161 TimeStampReq for a file.
type Requester interface {
	BuildRequest(ctx context.Context, dataPath string) ([]byte, error)
}

// NativeRequester encodes the request in process.
type NativeRequester struct {
	// Nonce overrides the random nonce source; used by tests.
	Nonce func() (*big.Int, error)
}

// BuildRequest hashes dataPath with SHA-256 and encodes a v1 request asking for the TSA certificate.
func (r NativeRequester) BuildRequest(ctx context.Context, dataPath string) ([]byte, error) {
	digest, err := fileDigest(dataPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRequestBuild, err)
	}
	nonceFn := r.Nonce
	if nonceFn == nil {
		nonceFn = randomNonce
	}
	nonce, err := nonceFn()
	if err != nil {
		return nil, fmt.Errorf("%w: nonce: %v", ErrRequestBuild, err)
	}
	der, err := EncodeRequest(digest, nonce)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRequestBuild, err)
	}
	return der, nil
}

// EncodeRequest returns the DER form of
//
//	TimeStampReq ::= SEQUENCE {
//	  version INTEGER, messageImprint MessageImprint, nonce INTEGER, certReq BOOLEAN }
func EncodeRequest(sha256Digest []byte, nonce *big.Int) ([]byte, error) {
	if len(sha256Digest) != sha256.Size {
		return nil, fmt.Errorf("digest must be %d bytes", sha256.Size)
	}
	var b cryptobyte.Builder
	b.AddASN1(cbasn1.SEQUENCE, func(req *cryptobyte.Builder) {
		req.AddASN1Int64(1)
		req.AddASN1(cbasn1.SEQUENCE, func(imprint *cryptobyte.Builder) {
			imprint.AddASN1(cbasn1.SEQUENCE, func(alg *cryptobyte.Builder) {
				alg.AddASN1ObjectIdentifier(oidSHA256)
				alg.AddASN1NULL()
			})
			imprint.AddASN1OctetString(sha256Digest)
		})
		if nonce != nil {
			req.AddASN1BigInt(nonce)
		}
		req.AddASN1Boolean(true)
	})
	return b.Bytes()
}

// OpenSSLRequester shells out to `openssl ts -query`.
type OpenSSLRequester struct {
	Path string
}

// BuildRequest runs the helper next to dataPath and returns the query it wrote.
func (r OpenSSLRequester) BuildRequest(ctx context.Context, dataPath string) ([]byte, error) {
	bin := r.Path
	if bin == "" {
		bin = "openssl"
	}
	tmp, err := os.CreateTemp(filepath.Dir(dataPath), ".tsq-*")
	if err != nil {
		return nil, fmt.Errorf("%w: temp file: %v", ErrRequestBuild, err)
	}
	tmpPath := tmp.Name()
	tmp.Close() //nolint:errcheck
	defer os.Remove(tmpPath) //nolint:errcheck

	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, "ts", "-query", "-data", dataPath, "-sha256", "-cert", "-out", tmpPath)
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%w: %v: %s", ErrRequestBuild, err, strings.TrimSpace(out.String()))
	}
	if strings.Contains(strings.ToLower(out.String()), "openssl:error") {
		return nil, fmt.Errorf("%w: %s", ErrRequestBuild, strings.TrimSpace(out.String()))
	}
	query, err := os.ReadFile(tmpPath)
	if err != nil || len(query) == 0 {
		return nil, fmt.Errorf("%w: no query written", ErrRequestBuild)
	}
	return query, nil
}

func fileDigest(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close() //nolint:errcheck
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return nil, err
	}
	return h.Sum(nil), nil
}

func randomNonce() (*big.Int, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(buf), nil
}
