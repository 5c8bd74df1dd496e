package polymarket

// auth.go: Polymarket CLOB authenticated client.
//
// Implements two-level authentication:
//   L1: EIP-712 signature with wallet private key → derive API credentials
//   L2: HMAC-SHA256 signing of every authenticated request

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/polymarket/go-order-utils/pkg/builder"
	gomodel "github.com/polymarket/go-order-utils/pkg/model"

	"github.com/alejandrodnm/wxbot/internal/domain"
)

const (
	polygonChainID = int64(137)

	// CLOB EIP-712 auth domain
	clobDomainName    = "ClobAuthDomain"
	clobDomainVersion = "1"
	// Message signed for deriving API keys
	clobAuthMessage = "This message attests that I control the given wallet"

	// Taker address: zero address = public order
	zeroAddress = "0x0000000000000000000000000000000000000000"
)

// apiCredentials holds the CLOB API credentials derived from a wallet.
type apiCredentials struct {
	APIKey     string `json:"apiKey"`
	Secret     string `json:"secret"`
	Passphrase string `json:"passphrase"`
}

// AuthClient wraps the base Client with L1/L2 auth capabilities.
type AuthClient struct {
	*Client
	privateKey   *ecdsa.PrivateKey
	address      common.Address
	orderBuilder builder.ExchangeOrderBuilder

	mu    sync.Mutex
	creds *apiCredentials
}

// NewAuthClient creates an authenticated trading client.
// privateKeyHex is the Polygon private key, with or without 0x prefix.
func NewAuthClient(clobBase, gammaBase, privateKeyHex string) (*AuthClient, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("auth: invalid private key: %w", err)
	}

	return &AuthClient{
		Client:       NewClient(clobBase, gammaBase),
		privateKey:   key,
		address:      crypto.PubkeyToAddress(key.PublicKey),
		orderBuilder: builder.NewExchangeOrderBuilderImpl(big.NewInt(polygonChainID), nil),
	}, nil
}

// Address returns the wallet address.
func (ac *AuthClient) Address() string {
	return ac.address.Hex()
}

// EnsureCreds derives API credentials via L1 auth once; later calls reuse them.
func (ac *AuthClient) EnsureCreds(ctx context.Context) error {
	ac.mu.Lock()
	defer ac.mu.Unlock()
	if ac.creds != nil {
		return nil
	}

	var creds apiCredentials
	err := ac.http.Do(ctx, ac.clobLimiter, func() (*http.Request, error) {
		ts := strconv.FormatInt(time.Now().Unix(), 10)
		sig, err := ac.signClobAuth(ts, "0")
		if err != nil {
			return nil, fmt.Errorf("sign l1: %w", err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, ac.clobBase+"/auth/derive-api-key", nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("POLY_ADDRESS", ac.address.Hex())
		req.Header.Set("POLY_SIGNATURE", sig)
		req.Header.Set("POLY_TIMESTAMP", ts)
		req.Header.Set("POLY_NONCE", "0")
		return req, nil
	}, &creds)
	if err != nil {
		return fmt.Errorf("auth: derive-api-key: %w", err)
	}
	if creds.APIKey == "" || creds.Secret == "" {
		return fmt.Errorf("auth: derive-api-key: empty credentials")
	}
	ac.creds = &creds
	return nil
}

func (ac *AuthClient) credentials() *apiCredentials {
	ac.mu.Lock()
	defer ac.mu.Unlock()
	return ac.creds
}

// EIP-712 type hashes (computed once).
var (
	eip712DomainTypeHash = crypto.Keccak256Hash([]byte(
		"EIP712Domain(string name,string version,uint256 chainId)",
	))
	clobAuthTypeHash = crypto.Keccak256Hash([]byte(
		"ClobAuth(address address,string timestamp,uint256 nonce,string message)",
	))
	clobAuthDomainSeparator = func() common.Hash {
		var buf []byte
		buf = append(buf, eip712DomainTypeHash.Bytes()...)
		buf = append(buf, crypto.Keccak256Hash([]byte(clobDomainName)).Bytes()...)
		buf = append(buf, crypto.Keccak256Hash([]byte(clobDomainVersion)).Bytes()...)
		buf = append(buf, common.LeftPadBytes(big.NewInt(polygonChainID).Bytes(), 32)...)
		return crypto.Keccak256Hash(buf)
	}()
)

// signClobAuth signs the ClobAuth EIP-712 typed data for L1 auth.
func (ac *AuthClient) signClobAuth(timestamp, nonce string) (string, error) {
	nonceInt, ok := new(big.Int).SetString(nonce, 10)
	if !ok {
		return "", fmt.Errorf("invalid nonce: %s", nonce)
	}

	var structBuf []byte
	structBuf = append(structBuf, clobAuthTypeHash.Bytes()...)
	structBuf = append(structBuf, common.LeftPadBytes(ac.address.Bytes(), 32)...)
	structBuf = append(structBuf, crypto.Keccak256Hash([]byte(timestamp)).Bytes()...)
	structBuf = append(structBuf, common.LeftPadBytes(nonceInt.Bytes(), 32)...)
	structBuf = append(structBuf, crypto.Keccak256Hash([]byte(clobAuthMessage)).Bytes()...)
	structHash := crypto.Keccak256Hash(structBuf)

	var rawBuf []byte
	rawBuf = append(rawBuf, 0x19, 0x01)
	rawBuf = append(rawBuf, clobAuthDomainSeparator.Bytes()...)
	rawBuf = append(rawBuf, structHash.Bytes()...)

	sig, err := crypto.Sign(crypto.Keccak256Hash(rawBuf).Bytes(), ac.privateKey)
	if err != nil {
		return "", err
	}
	sig[64] += 27
	return fmt.Sprintf("0x%x", sig), nil
}

// l2Headers returns the authenticated headers for L2 API calls.
func (ac *AuthClient) l2Headers(method, path, body string) (map[string]string, error) {
	creds := ac.credentials()
	if creds == nil {
		return nil, fmt.Errorf("auth: credentials not derived yet")
	}

	ts := strconv.FormatInt(time.Now().Unix(), 10)
	msg := ts + strings.ToUpper(method) + path + body

	secretBytes, err := base64.URLEncoding.DecodeString(creds.Secret)
	if err != nil {
		return nil, fmt.Errorf("auth: decode secret: %w", err)
	}

	mac := hmac.New(sha256.New, secretBytes)
	mac.Write([]byte(msg))

	return map[string]string{
		"POLY_ADDRESS":    ac.address.Hex(),
		"POLY_SIGNATURE":  base64.URLEncoding.EncodeToString(mac.Sum(nil)),
		"POLY_TIMESTAMP":  ts,
		"POLY_API_KEY":    creds.APIKey,
		"POLY_PASSPHRASE": creds.Passphrase,
	}, nil
}

// doL2 executes an authenticated L2 request. HMAC headers are regenerated on
// every retry so the timestamp stays fresh.
func (ac *AuthClient) doL2(ctx context.Context, method, path string, reqBody, out any) error {
	var body []byte
	if reqBody != nil {
		b, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("marshal: %w", err)
		}
		body = b
	}

	return ac.http.Do(ctx, ac.clobLimiter, func() (*http.Request, error) {
		headers, err := ac.l2Headers(method, path, string(body))
		if err != nil {
			return nil, err
		}
		var r io.Reader
		if body != nil {
			r = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, ac.clobBase+path, r)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		return req, nil
	}, out)
}

// buildSignedOrder creates an EIP-712 signed BUY order. Maker and taker
// amounts are taken verbatim from the normalized order, so the CLOB check
// makerAmount == price × takerAmount holds exactly.
func (ac *AuthClient) buildSignedOrder(tokenID string, order domain.NormalizedOrder, negRisk bool) (*gomodel.SignedOrder, error) {
	if order.IsZero() {
		return nil, fmt.Errorf("empty order: %w", domain.ErrInvalidOrder)
	}
	maker, taker := order.MakerAmount(), order.TakerAmount()
	if maker <= 0 || taker <= 0 {
		return nil, fmt.Errorf("invalid amounts: maker=%d taker=%d (%s): %w", maker, taker, order, domain.ErrInvalidOrder)
	}

	verifyingContract := gomodel.CTFExchange
	if negRisk {
		verifyingContract = gomodel.NegRiskCTFExchange
	}

	orderData := &gomodel.OrderData{
		Maker:         ac.address.Hex(),
		Taker:         zeroAddress,
		TokenId:       tokenID,
		MakerAmount:   strconv.FormatInt(maker, 10),
		TakerAmount:   strconv.FormatInt(taker, 10),
		FeeRateBps:    "0",
		Nonce:         "0",
		Signer:        ac.address.Hex(),
		Expiration:    "0",
		Side:          gomodel.BUY,
		SignatureType: gomodel.EOA,
	}

	signed, err := ac.orderBuilder.BuildSignedOrder(ac.privateKey, orderData, verifyingContract)
	if err != nil {
		return nil, fmt.Errorf("build signed order: %w", err)
	}
	return signed, nil
}
