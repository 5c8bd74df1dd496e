package onchain

// approvals.go: allowance de USDC.e para los exchanges del CLOB.
//
// Una orden BUY solo se liquida si el exchange puede mover el colateral de
// la wallet. Antes de operar en vivo comprobamos el allowance ERC20 de
// USDC.e para el exchange normal y el neg-risk, y si está por debajo del
// mínimo enviamos un approve por el máximo uint256.

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

const (
	polygonChainID = int64(137)

	usdcEAddress    = "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174"
	normalExchange  = "0x4bFb41d5B3570DeFd03C39a9A4D8dE6Bd8B8982E"
	negRiskExchange = "0xC5d563A36AE78145C45a50134d48A1215220f80a"

	approvalGasLimit = uint64(80_000)
	fallbackGasWei   = 30_000_000_000 // 30 gwei
	receiptTimeout   = 60 * time.Second
	receiptPoll      = 3 * time.Second
)

var erc20ABI abi.ABI

func init() {
	var err error
	erc20ABI, err = abi.JSON(strings.NewReader(`[
		{
			"name": "approve",
			"type": "function",
			"inputs": [
				{"name": "spender", "type": "address"},
				{"name": "amount", "type": "uint256"}
			],
			"outputs": [{"name": "", "type": "bool"}]
		},
		{
			"name": "allowance",
			"type": "function",
			"inputs": [
				{"name": "owner", "type": "address"},
				{"name": "spender", "type": "address"}
			],
			"outputs": [{"name": "", "type": "uint256"}]
		}
	]`))
	if err != nil {
		panic("erc20 abi parse: " + err.Error())
	}
}

// Backend es el subconjunto de ethclient.Client que necesitamos.
type Backend interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Approver gestiona los approvals de colateral de una wallet.
type Approver struct {
	backend Backend
	key     *ecdsa.PrivateKey
	address common.Address

	// mínimo allowance aceptable, en unidades de 6 decimales
	minAllowance *big.Int
	pollEvery    time.Duration
}

// NewApprover crea el approver para la clave dada (con o sin 0x).
func NewApprover(backend Backend, privateKeyHex string) (*Approver, error) {
	pkBytes, err := hex.DecodeString(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("onchain.NewApprover: decode private key: %w", err)
	}
	key, err := crypto.ToECDSA(pkBytes)
	if err != nil {
		return nil, fmt.Errorf("onchain.NewApprover: invalid private key: %w", err)
	}
	return &Approver{
		backend:      backend,
		key:          key,
		address:      crypto.PubkeyToAddress(key.PublicKey),
		minAllowance: new(big.Int).Mul(big.NewInt(1_000_000), big.NewInt(1_000_000)), // 1M USDC.e
		pollEvery:    receiptPoll,
	}, nil
}

// Address devuelve la dirección de la wallet.
func (a *Approver) Address() common.Address { return a.address }

// EnsureCollateralApprovals deja a ambos exchanges con allowance suficiente.
// Devuelve cuántos approves tuvo que enviar.
func (a *Approver) EnsureCollateralApprovals(ctx context.Context) (int, error) {
	token := common.HexToAddress(usdcEAddress)
	maxUint256 := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

	sent := 0
	for _, ex := range []string{normalExchange, negRiskExchange} {
		spender := common.HexToAddress(ex)
		allowance, err := a.allowance(ctx, token, spender)
		if err != nil {
			return sent, fmt.Errorf("onchain: allowance for %s: %w", ex, err)
		}
		if allowance.Cmp(a.minAllowance) >= 0 {
			slog.Debug("onchain: USDC.e allowance ok", "exchange", ex)
			continue
		}

		slog.Info("onchain: approving USDC.e", "exchange", ex)
		if err := a.approve(ctx, token, spender, maxUint256); err != nil {
			return sent, fmt.Errorf("onchain: approve %s: %w", ex, err)
		}
		sent++
		slog.Info("onchain: USDC.e approved", "exchange", ex)
	}
	return sent, nil
}

func (a *Approver) allowance(ctx context.Context, token, spender common.Address) (*big.Int, error) {
	data, err := erc20ABI.Pack("allowance", a.address, spender)
	if err != nil {
		return nil, err
	}
	out, err := a.backend.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return nil, err
	}
	vals, err := erc20ABI.Unpack("allowance", out)
	if err != nil {
		return nil, err
	}
	if len(vals) == 0 {
		return nil, errors.New("empty allowance response")
	}
	v, ok := vals[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected allowance type %T", vals[0])
	}
	return v, nil
}

func (a *Approver) approve(ctx context.Context, token, spender common.Address, amount *big.Int) error {
	data, err := erc20ABI.Pack("approve", spender, amount)
	if err != nil {
		return err
	}
	nonce, err := a.backend.PendingNonceAt(ctx, a.address)
	if err != nil {
		return fmt.Errorf("nonce: %w", err)
	}

	tx := types.NewTransaction(nonce, token, big.NewInt(0), approvalGasLimit, a.gasPrice(ctx), data)
	signed, err := types.SignTx(tx, types.NewEIP155Signer(big.NewInt(polygonChainID)), a.key)
	if err != nil {
		return fmt.Errorf("sign: %w", err)
	}
	if err := a.backend.SendTransaction(ctx, signed); err != nil {
		return fmt.Errorf("send: %w", err)
	}

	rctx, cancel := context.WithTimeout(ctx, receiptTimeout)
	defer cancel()
	receipt, err := a.waitForReceipt(rctx, signed.Hash())
	if err != nil {
		return fmt.Errorf("wait receipt %s: %w", signed.Hash().Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return fmt.Errorf("approve tx %s reverted", signed.Hash().Hex())
	}
	return nil
}

// gasPrice sugiere el precio con un 10% extra; sin RPC usa 30 gwei.
func (a *Approver) gasPrice(ctx context.Context) *big.Int {
	price, err := a.backend.SuggestGasPrice(ctx)
	if err != nil || price == nil {
		return big.NewInt(fallbackGasWei)
	}
	buffered := new(big.Int).Mul(price, big.NewInt(11))
	return buffered.Div(buffered, big.NewInt(10))
}

func (a *Approver) waitForReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(a.pollEvery)
	defer ticker.Stop()
	for {
		receipt, err := a.backend.TransactionReceipt(ctx, hash)
		if err == nil {
			return receipt, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
