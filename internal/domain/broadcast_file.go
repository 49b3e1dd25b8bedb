package domain

// BroadcastFile is the subset of a forge broadcast run file used to recover
// deployed contracts
type BroadcastFile struct {
	Chain        uint64                 `json:"chain"`
	Transactions []BroadcastTransaction `json:"transactions"`
	Receipts     []BroadcastReceipt     `json:"receipts"`
	Timestamp    uint64                 `json:"timestamp"`
}

// BroadcastTransaction represents a transaction in a broadcast file
type BroadcastTransaction struct {
	Hash                string               `json:"hash"`
	TransactionType     string               `json:"transactionType"`
	ContractName        string               `json:"contractName"`
	ContractAddr        string               `json:"contractAddress"`
	AdditionalContracts []AdditionalContract `json:"additionalContracts,omitempty"`
}

// AdditionalContract is a contract created as a side effect of a transaction
type AdditionalContract struct {
	ContractName string `json:"contractName"`
	ContractAddr string `json:"address"`
}

// BroadcastReceipt represents a receipt in a broadcast file
type BroadcastReceipt struct {
	TransactionHash string `json:"transactionHash"`
	Status          string `json:"status"`
	ContractAddress string `json:"contractAddress"`
}
