package ledger

import (
	"context"
	"fmt"

	hedera "github.com/hashgraph/hedera-sdk-go/v2"
)

// HederaClient implements Ledger against a Hedera network. All submissions
// sign as the operator account, which is also the ticket treasury.
type HederaClient struct {
	client      *hedera.Client
	operatorID  hedera.AccountID
	operatorKey hedera.PrivateKey
}

// NewHederaClient builds a client for the named network ("testnet",
// "mainnet", or "previewnet") with the given operator credentials.
func NewHederaClient(network, operatorAccountID, operatorPrivateKey string) (*HederaClient, error) {
	operatorID, err := hedera.AccountIDFromString(operatorAccountID)
	if err != nil {
		return nil, fmt.Errorf("invalid operator account id: %w", err)
	}
	operatorKey, err := hedera.PrivateKeyFromString(operatorPrivateKey)
	if err != nil {
		return nil, fmt.Errorf("invalid operator private key: %w", err)
	}

	var client *hedera.Client
	switch network {
	case "mainnet":
		client = hedera.ClientForMainnet()
	case "previewnet":
		client = hedera.ClientForPreviewnet()
	default:
		client = hedera.ClientForTestnet()
	}
	client.SetOperator(operatorID, operatorKey)

	return &HederaClient{
		client:      client,
		operatorID:  operatorID,
		operatorKey: operatorKey,
	}, nil
}

// Make sure we conform to the interface
var _ Ledger = (*HederaClient)(nil)

// OperatorAccountID returns the operator identity as a string. Payments are
// verified against this account and tickets transfer out of it.
func (h *HederaClient) OperatorAccountID() string {
	return h.operatorID.String()
}

// Close releases the underlying network channels.
func (h *HederaClient) Close() error {
	return h.client.Close()
}

func (h *HederaClient) CreateEventTopic(ctx context.Context, memo string) (string, string, error) {
	response, err := hedera.NewTopicCreateTransaction().
		SetAdminKey(h.operatorKey.PublicKey()).
		SetSubmitKey(h.operatorKey.PublicKey()).
		SetTopicMemo(memo).
		SetMaxTransactionFee(hedera.NewHbar(5)).
		Execute(h.client)
	if err != nil {
		return "", "", fmt.Errorf("failed to create event topic: %w", err)
	}

	receipt, err := response.GetReceipt(h.client)
	if err != nil {
		return "", "", fmt.Errorf("failed to get topic create receipt: %w", err)
	}
	if receipt.TopicID == nil {
		return "", "", fmt.Errorf("topic create receipt missing topic id")
	}

	return receipt.TopicID.String(), response.TransactionID.String(), nil
}

func (h *HederaClient) CreateTicketCollection(ctx context.Context, name, symbol string, maxSupply int64) (string, string, error) {
	response, err := hedera.NewTokenCreateTransaction().
		SetTokenName(name).
		SetTokenSymbol(symbol).
		SetTokenType(hedera.TokenTypeNonFungibleUnique).
		SetSupplyType(hedera.TokenSupplyTypeFinite).
		SetMaxSupply(maxSupply).
		SetTreasuryAccountID(h.operatorID).
		SetAdminKey(h.operatorKey.PublicKey()).
		SetSupplyKey(h.operatorKey.PublicKey()).
		SetInitialSupply(0).
		SetDecimals(0).
		SetMaxTransactionFee(hedera.NewHbar(20)).
		Execute(h.client)
	if err != nil {
		return "", "", fmt.Errorf("failed to create ticket collection: %w", err)
	}

	receipt, err := response.GetReceipt(h.client)
	if err != nil {
		return "", "", fmt.Errorf("failed to get token create receipt: %w", err)
	}
	if receipt.TokenID == nil {
		return "", "", fmt.Errorf("token create receipt missing token id")
	}

	return receipt.TokenID.String(), response.TransactionID.String(), nil
}

func (h *HederaClient) MintTicket(ctx context.Context, tokenID string, metadata []byte) (*MintResult, error) {
	tid, err := hedera.TokenIDFromString(tokenID)
	if err != nil {
		return nil, fmt.Errorf("invalid ticket token id: %w", err)
	}

	response, err := hedera.NewTokenMintTransaction().
		SetTokenID(tid).
		SetMetadata(metadata).
		SetMaxTransactionFee(hedera.NewHbar(10)).
		Execute(h.client)
	if err != nil {
		return nil, fmt.Errorf("failed to mint ticket: %w", err)
	}

	receipt, err := response.GetReceipt(h.client)
	if err != nil {
		return nil, fmt.Errorf("failed to get mint receipt: %w", err)
	}
	if len(receipt.SerialNumbers) == 0 {
		return nil, fmt.Errorf("mint receipt missing serial number")
	}

	return &MintResult{
		SerialNumber:  receipt.SerialNumbers[0],
		TransactionID: response.TransactionID.String(),
	}, nil
}

func (h *HederaClient) TransferTicket(ctx context.Context, tokenID string, serialNumber int64, buyerAccountID string) (string, error) {
	tid, err := hedera.TokenIDFromString(tokenID)
	if err != nil {
		return "", fmt.Errorf("invalid ticket token id: %w", err)
	}
	buyer, err := hedera.AccountIDFromString(buyerAccountID)
	if err != nil {
		return "", fmt.Errorf("invalid buyer account id: %w", err)
	}

	nftID := hedera.NftID{TokenID: tid, SerialNumber: serialNumber}
	frozen, err := hedera.NewTransferTransaction().
		AddNftTransfer(nftID, h.operatorID, buyer).
		FreezeWith(h.client)
	if err != nil {
		return "", fmt.Errorf("failed to freeze ticket transfer: %w", err)
	}

	response, err := frozen.Sign(h.operatorKey).Execute(h.client)
	if err != nil {
		return "", fmt.Errorf("failed to transfer ticket: %w", err)
	}

	if _, err := response.GetReceipt(h.client); err != nil {
		return "", fmt.Errorf("ticket transfer did not reach consensus: %w", err)
	}

	return response.TransactionID.String(), nil
}

func (h *HederaClient) SubmitTopicMessage(ctx context.Context, topicID string, message []byte) (string, error) {
	tid, err := hedera.TopicIDFromString(topicID)
	if err != nil {
		return "", fmt.Errorf("invalid topic id: %w", err)
	}

	response, err := hedera.NewTopicMessageSubmitTransaction().
		SetTopicID(tid).
		SetMessage(message).
		SetMaxTransactionFee(hedera.NewHbar(2)).
		Execute(h.client)
	if err != nil {
		return "", fmt.Errorf("failed to submit topic message: %w", err)
	}

	return response.TransactionID.String(), nil
}
