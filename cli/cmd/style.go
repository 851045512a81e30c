package cmd

import (
	"fmt"
	"sort"

	"github.com/pterm/pterm"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/MiguelVN7/Mini-Blockchain/api"
	"github.com/MiguelVN7/Mini-Blockchain/core/consensus"
)

// Stake amounts are printed with thousands separators.
var printer = message.NewPrinter(language.English)

func formatTokens(n uint64) string {
	return printer.Sprintf("%d", n)
}

func printStatus(status consensus.Status) error {
	seed := pterm.Gray("none")
	if status.Seed != nil {
		seed = fmt.Sprintf("%#08x (by %s)", *status.Seed, *status.SeedLeader)
	}

	var total uint64
	for _, amount := range status.FrozenStake {
		total += amount
	}

	info := pterm.Sprintfln("turn:         %d", status.Turn) +
		pterm.Sprintfln("phase:        %s", phaseColor(status.Phase)) +
		pterm.Sprintfln("leader:       %s", pterm.LightCyan(status.LeaderForTurn)) +
		pterm.Sprintfln("seed:         %s", seed) +
		pterm.Sprintfln("active nodes: %d", status.ActiveNodes) +
		pterm.Sprintfln("votes:        %d", status.Votes) +
		pterm.Sprintfln("frozen stake: %s", formatTokens(total)) +
		pterm.Sprintf("digest:       %s", status.StateDigest)

	pterm.DefaultBox.WithTitle(pterm.LightYellow("|CONSENSUS|")).WithTitleTopCenter().Println(info)
	return nil
}

func phaseColor(phase consensus.Phase) string {
	switch phase {
	case consensus.PhaseQuorumReached:
		return pterm.LightGreen(string(phase))
	case consensus.PhaseQuorumNotReached:
		return pterm.LightRed(string(phase))
	default:
		return pterm.LightYellow(string(phase))
	}
}

func printNodes(nodes []consensus.NodeInfo) error {
	sorted := append([]consensus.NodeInfo(nil), nodes...)
	// Rotation order first, expelled nodes last.
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Active != sorted[j].Active {
			return sorted[i].Active
		}
		return sorted[i].RotationOrder < sorted[j].RotationOrder
	})

	data := pterm.TableData{{"Order", "Node", "IP", "Stake", "Status"}}
	for _, n := range sorted {
		state := pterm.LightGreen("active")
		order := fmt.Sprintf("%d", n.RotationOrder)
		if !n.Active {
			state = pterm.LightRed("expelled")
			order = "-"
		}
		data = append(data, []string{order, n.NodeID, n.IP, formatTokens(n.FrozenTokens), state})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

func printVotes(votes []api.VoteView) error {
	data := pterm.TableData{{"Node", "Token", "Selected"}}
	for _, v := range votes {
		data = append(data, []string{v.NodeID, v.Token, fmt.Sprintf("%d", v.SelectedIndex)})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

func printResult(result consensus.ConsensusResult) {
	if result.Leader == "" {
		pterm.Info.Println("no votes with stake this turn")
		return
	}
	msg := fmt.Sprintf("leader %s with %.1f%% agreement", pterm.LightCyan(result.Leader), result.Agreement*100)
	if result.ThresholdReached {
		pterm.Success.Println(msg)
	} else {
		pterm.Warning.Println(msg + ", below the 2/3 threshold")
	}
}

func printHistory(commits []consensus.Commit) error {
	data := pterm.TableData{{"Turn", "Leader", "Block", "Hash", "Agreement"}}
	for _, c := range commits {
		data = append(data, []string{
			fmt.Sprintf("%d", c.Turn),
			c.LeaderID,
			printer.Sprintf("%d", c.BlockIndex),
			c.BlockHash,
			fmt.Sprintf("%.1f%%", c.Agreement*100),
		})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}
