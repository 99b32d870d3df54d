package main

import (
	"fmt"
	"net"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/miekg/dns"
	"github.com/spf13/cobra"

	"github.com/jroosing/labnet/internal/zone"
)

func newZoneCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "zone",
		Short: "Inspect zone files",
	}

	var origin string
	printCmd := &cobra.Command{
		Use:   "print <file>",
		Short: "Parse a zone file and print its records sorted",
		Long: `Parse a zone file and print its records sorted by name, type and value.
The origin defaults to the file name without its .fwd or .rev extension.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			o := origin
			if o == "" {
				o = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
			}
			z, err := zone.LoadFile(o, path)
			if err != nil {
				return fmt.Errorf("failed to load zone: %w", err)
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "ORIGIN: %s\n", z.Origin)
			fmt.Fprintf(w, "SERIAL: %d\n", z.Serial())
			fmt.Fprintf(w, "DEFAULT_TTL: %d\n", z.DefaultTTL)
			fmt.Fprintln(w, "RECORDS:")
			for _, line := range sortedRecords(z.Records()) {
				fmt.Fprintf(w, "  %s\n", line)
			}
			return nil
		},
	}
	printCmd.Flags().StringVar(&origin, "origin", "", "Zone origin")
	cmd.AddCommand(printCmd)
	return cmd
}

// sortedRecords renders records as "name ttl IN type rdata", ordered by
// name, type and rdata.
func sortedRecords(rrs []dns.RR) []string {
	sort.SliceStable(rrs, func(i, j int) bool {
		a, b := rrs[i].Header(), rrs[j].Header()
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		if a.Rrtype != b.Rrtype {
			return dns.TypeToString[a.Rrtype] < dns.TypeToString[b.Rrtype]
		}
		return rdata(rrs[i]) < rdata(rrs[j])
	})
	out := make([]string, 0, len(rrs))
	for _, rr := range rrs {
		h := rr.Header()
		out = append(out, fmt.Sprintf("%s %d IN %s %s", h.Name, h.Ttl, dns.TypeToString[h.Rrtype], rdata(rr)))
	}
	return out
}

func rdata(rr dns.RR) string {
	return strings.TrimPrefix(rr.String(), rr.Header().String())
}

func newDigCmd() *cobra.Command {
	var (
		server  string
		useTCP  bool
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "dig <name> [type]",
		Short: "Query a name server directly",
		Long: `Send one query to a name server and print the answer section.
Use "labnet call dns query" to ask a managed server through the orchestrator.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			qtype := dns.TypeA
			if len(args) == 2 {
				t, ok := dns.StringToType[strings.ToUpper(args[1])]
				if !ok {
					return fmt.Errorf("unknown record type %q", args[1])
				}
				qtype = t
			}
			addr := server
			if _, _, err := net.SplitHostPort(addr); err != nil {
				addr = net.JoinHostPort(addr, "53")
			}

			m := new(dns.Msg)
			m.SetQuestion(dns.Fqdn(args[0]), qtype)
			c := &dns.Client{Timeout: timeout}
			if useTCP {
				c.Net = "tcp"
			}
			resp, rtt, err := c.ExchangeContext(cmd.Context(), m, addr)
			if err != nil {
				return fmt.Errorf("query %s: %w", addr, err)
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "id=%d rcode=%s answers=%d authorities=%d additionals=%d rtt=%s\n",
				resp.Id, dns.RcodeToString[resp.Rcode], len(resp.Answer), len(resp.Ns), len(resp.Extra), rtt)
			for _, line := range sortedRecords(resp.Answer) {
				fmt.Fprintln(w, line)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&server, "server", "s", "127.0.0.1:53", "Name server HOST[:PORT]")
	cmd.Flags().BoolVar(&useTCP, "tcp", false, "Query over TCP")
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Second, "Query timeout")
	return cmd
}
