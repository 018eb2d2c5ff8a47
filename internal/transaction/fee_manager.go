// internal/transaction/fee_manager.go
package transaction

import (
	"github.com/gagliardetto/solana-go"
	computebudget "github.com/gagliardetto/solana-go/programs/compute-budget"
)

// budgetInstructions builds the priority fee and compute limit instructions that lead every transaction.
func budgetInstructions(unitPrice uint64, unitLimit uint32) []solana.Instruction {
	return []solana.Instruction{
		computebudget.NewSetComputeUnitPriceInstruction(unitPrice).Build(),
		computebudget.NewSetComputeUnitLimitInstruction(unitLimit).Build(),
	}
}

// withBudget prepends the compute budget instructions, dropping any the caller already supplied.
func withBudget(instructions []solana.Instruction, unitPrice uint64, unitLimit uint32) []solana.Instruction {
	out := budgetInstructions(unitPrice, unitLimit)
	for _, ix := range instructions {
		if ix.ProgramID().Equals(solana.ComputeBudget) {
			continue
		}
		out = append(out, ix)
	}
	return out
}
