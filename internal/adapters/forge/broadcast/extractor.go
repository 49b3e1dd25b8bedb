// Package broadcast recovers deployed contracts from forge broadcast files
// and, failing that, from deployment output
package broadcast

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/trebuchet-org/treb-runner/internal/domain"
	"github.com/trebuchet-org/treb-runner/internal/usecase"
)

var outputPatterns = []*regexp.Regexp{
	// Deployed Counter: 0x... / Deployed Counter at address: 0x...
	regexp.MustCompile(`Deployed (\w+).*?:\s+(0x[a-fA-F0-9]{40})`),
	// Counter deployed to: 0x...
	regexp.MustCompile(`(\w+) deployed to:\s+(0x[a-fA-F0-9]{40})`),
}

// Extractor implements usecase.DeploymentExtractor
type Extractor struct{}

// NewExtractor creates a new broadcast extractor
func NewExtractor() *Extractor {
	return &Extractor{}
}

// FromBroadcast reads the newest run file under
// <project>/broadcast/<script file>/<chain id>/
func (e *Extractor) FromBroadcast(projectPath, scriptPath string, chainID uint64) ([]domain.DeployedContract, error) {
	dir := filepath.Join(projectPath, "broadcast", filepath.Base(scriptPath), fmt.Sprintf("%d", chainID))
	file, err := latestRunFile(dir)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read broadcast file: %w", err)
	}
	var run domain.BroadcastFile
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("failed to parse broadcast file %s: %w", file, err)
	}

	failed := make(map[string]bool)
	for _, r := range run.Receipts {
		if r.Status == "0x0" {
			failed[strings.ToLower(r.TransactionHash)] = true
		}
	}

	var contracts []domain.DeployedContract
	seen := make(map[string]bool)
	add := func(name, addr, hash string) {
		if name == "" || !common.IsHexAddress(addr) {
			return
		}
		checksummed := common.HexToAddress(addr).Hex()
		if seen[checksummed] {
			return
		}
		seen[checksummed] = true
		contracts = append(contracts, domain.DeployedContract{
			Name:       name,
			Address:    checksummed,
			TxHash:     hash,
			Confidence: domain.ConfidenceBroadcast,
		})
	}

	for _, tx := range run.Transactions {
		if failed[strings.ToLower(tx.Hash)] {
			continue
		}
		if strings.HasPrefix(tx.TransactionType, "CREATE") {
			add(tx.ContractName, tx.ContractAddr, tx.Hash)
		}
		for _, extra := range tx.AdditionalContracts {
			add(extra.ContractName, extra.ContractAddr, tx.Hash)
		}
	}
	if contracts == nil {
		contracts = []domain.DeployedContract{}
	}
	return contracts, nil
}

// FromOutput scrapes deployment lines from command output
func (e *Extractor) FromOutput(output string) []domain.DeployedContract {
	var contracts []domain.DeployedContract
	seen := make(map[string]bool)
	for _, re := range outputPatterns {
		for _, m := range re.FindAllStringSubmatch(output, -1) {
			name, addr := m[1], common.HexToAddress(m[2]).Hex()
			if len(name) <= 1 || seen[addr] {
				continue
			}
			seen[addr] = true
			contracts = append(contracts, domain.DeployedContract{
				Name:       name,
				Address:    addr,
				Confidence: domain.ConfidenceOutput,
			})
		}
	}
	return contracts
}

// latestRunFile returns the most recently modified run-*.json in dir
func latestRunFile(dir string) (string, error) {
	files, err := filepath.Glob(filepath.Join(dir, "run-*.json"))
	if err != nil {
		return "", fmt.Errorf("failed to list broadcast files: %w", err)
	}

	var latest string
	var latestInfo os.FileInfo
	for _, f := range files {
		info, err := os.Stat(f)
		if err != nil {
			continue
		}
		if latestInfo == nil || info.ModTime().After(latestInfo.ModTime()) {
			latest, latestInfo = f, info
		}
	}
	if latest == "" {
		return "", fmt.Errorf("no broadcast run in %s: %w", dir, domain.ErrNotFound)
	}
	return latest, nil
}

var _ usecase.DeploymentExtractor = (*Extractor)(nil)
