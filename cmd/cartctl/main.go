// cartctl is a CLI tool for driving the shopper API.
// Each command performs a single operation, making it composable for scripts.
//
// Commands:
//
//	cartctl comparisons [-shopper URL]
//	cartctl cart [-shopper URL]
//	cartctl init [-shopper URL]
//	cartctl add -product ID | -name NAME [-shopper URL]
//	cartctl set -product ID -qty N [-shopper URL]
//	cartctl remove -product ID [-shopper URL]
//	cartctl refresh [-shopper URL]
//	cartctl optimize [-shopper URL]
//
// Examples:
//
//	cartctl add -name "Молоко 3,2%"
//	cartctl set -product 101 -qty 3
//	cartctl optimize -q
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

var client = &http.Client{Timeout: 30 * time.Second}

// Global flags (apply to all commands)
var (
	shopperURL string
	quiet      bool
	noColor    bool
	verbose    bool
)

// ANSI color codes
var (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
	colorBold   = "\033[1m"
)

func init() {
	if os.Getenv("NO_COLOR") != "" {
		disableColors()
	}
}

func disableColors() {
	colorReset, colorRed, colorGreen, colorYellow = "", "", "", ""
	colorCyan, colorGray, colorBold = "", "", ""
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "comparisons":
		runComparisons(args)
	case "cart":
		runCart(args)
	case "init":
		runSimpleCart("init", "POST", "/cart/init", "Cart initialized", args)
	case "refresh":
		runSimpleCart("refresh", "POST", "/cart/refresh", "Cart refreshed", args)
	case "add":
		runAdd(args)
	case "set":
		runSet(args)
	case "remove":
		runRemove(args)
	case "optimize":
		runOptimize(args)
	case "-h", "-help", "--help", "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `cartctl - shopper cart tool

Usage:
  cartctl <command> [options]

Commands:
  comparisons  List products priced at both shops
  cart         Show the cart
  init         Create the cart and move pending items into it
  add          Add one unit of a product or of a comparison's cheaper product
  set          Set a product's quantity
  remove       Remove a product
  refresh      Reload the cart from the cart service
  optimize     Ask which shop is cheaper for the whole cart

Examples:
  cartctl add -name "Молоко 3,2%%"
  cartctl set -product 101 -qty 3
  cartctl optimize

Run 'cartctl <command> -h' for command-specific options.
`)
}

// newFlagSet registers the flags every command shares.
func newFlagSet(name, usage string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	fs.StringVar(&shopperURL, "shopper", envOr("SHOPPER_URL", "http://localhost:8080"), "Shopper API base URL")
	fs.BoolVar(&quiet, "q", false, "Quiet mode - only output the essential value")
	fs.BoolVar(&noColor, "no-color", false, "Disable colored output")
	fs.BoolVar(&verbose, "v", false, "Verbose - show full request/response")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: cartctl %s\n\nOptions:\n", usage)
		fs.PrintDefaults()
	}
	return fs
}

func parseFlags(fs *flag.FlagSet, args []string) {
	fs.Parse(args)
	if noColor {
		disableColors()
	}
}

// =============================================================================
// COMPARISONS COMMAND
// =============================================================================

func runComparisons(args []string) {
	fs := newFlagSet("comparisons", "comparisons [options]")
	parseFlags(fs, args)

	resp, err := doRequest("GET", "/comparisons", nil)
	if err != nil {
		fatal("Failed to list comparisons: %v", err)
	}

	comparisons, _ := resp["comparisons"].([]interface{})
	if quiet {
		for _, c := range comparisons {
			if m, ok := c.(map[string]interface{}); ok {
				fmt.Println(m["productName"])
			}
		}
		return
	}

	printSuccess("%d comparisons", len(comparisons))
	for _, c := range comparisons {
		m, ok := c.(map[string]interface{})
		if !ok {
			continue
		}
		fmt.Printf("  %s%s%s\n", colorBold, m["productName"], colorReset)
		fmt.Printf("    Самокат %s₽ · Лавка %s₽ · cheaper: %s%s%s (−%s₽)\n",
			m["samokatPrice"], m["lavkaPrice"], colorCyan, m["cheaperShop"], colorReset, m["priceDifference"])
	}
}

// =============================================================================
// CART COMMANDS
// =============================================================================

func runCart(args []string) {
	fs := newFlagSet("cart", "cart [options]")
	parseFlags(fs, args)

	resp, err := doRequest("GET", "/cart", nil)
	if err != nil {
		fatal("Failed to get cart: %v", err)
	}
	printCart(resp, "Cart retrieved")
}

// runSimpleCart runs a command that takes no arguments and returns the cart.
func runSimpleCart(name, method, path, done string, args []string) {
	fs := newFlagSet(name, name+" [options]")
	parseFlags(fs, args)

	resp, err := doRequest(method, path, nil)
	if err != nil {
		fatal("Failed to %s cart: %v", name, err)
	}
	printCart(resp, done)
}

func runAdd(args []string) {
	fs := newFlagSet("add", "add -product ID | -name NAME [options]")
	var productID, name string
	fs.StringVar(&productID, "product", "", "Product ID")
	fs.StringVar(&name, "name", "", "Comparison product name; its cheaper product is added")
	parseFlags(fs, args)

	var path string
	switch {
	case name != "":
		path = "/comparisons/" + url.PathEscape(name) + "/cart"
	case productID != "":
		path = "/cart/items/" + url.PathEscape(productID)
	default:
		fs.Usage()
		os.Exit(1)
	}

	resp, err := doRequest("POST", path, nil)
	if err != nil {
		fatal("Failed to add to cart: %v", err)
	}
	printCart(resp, "Added to cart")
}

func runSet(args []string) {
	fs := newFlagSet("set", "set -product ID -qty N [options]")
	var productID string
	var quantity int
	fs.StringVar(&productID, "product", "", "Product ID (required)")
	fs.IntVar(&quantity, "qty", -1, "Quantity (required, 0 removes)")
	parseFlags(fs, args)

	if productID == "" || quantity < 0 {
		fs.Usage()
		os.Exit(1)
	}

	resp, err := doRequest("PUT", "/cart/items/"+url.PathEscape(productID), map[string]interface{}{
		"quantity": quantity,
	})
	if err != nil {
		fatal("Failed to set quantity: %v", err)
	}
	printCart(resp, "Quantity updated")
}

func runRemove(args []string) {
	fs := newFlagSet("remove", "remove -product ID [options]")
	var productID string
	fs.StringVar(&productID, "product", "", "Product ID (required)")
	parseFlags(fs, args)

	if productID == "" {
		fs.Usage()
		os.Exit(1)
	}

	resp, err := doRequest("DELETE", "/cart/items/"+url.PathEscape(productID), nil)
	if err != nil {
		fatal("Failed to remove from cart: %v", err)
	}
	printCart(resp, "Removed from cart")
}

// =============================================================================
// OPTIMIZE COMMAND
// =============================================================================

func runOptimize(args []string) {
	fs := newFlagSet("optimize", "optimize [options]")
	parseFlags(fs, args)

	resp, err := doRequest("POST", "/cart/optimize", nil)
	if err != nil {
		fatal("Failed to optimize cart: %v", err)
	}

	if optimized, _ := resp["optimized"].(bool); !optimized {
		msg, _ := resp["message"].(string)
		if quiet {
			fmt.Println(msg)
		} else {
			printWarning("%s", msg)
		}
		return
	}

	summary, _ := resp["optimization"].(map[string]interface{})
	if quiet {
		fmt.Println(summary["recommendedShop"])
		return
	}

	printSuccess("Cart optimized")
	lines, _ := summary["lines"].([]interface{})
	for i, line := range lines {
		color := colorReset
		if i == len(lines)-1 {
			color = colorGreen + colorBold
		}
		fmt.Printf("  %s%s%s\n", color, line, colorReset)
	}
}

// =============================================================================
// HTTP & OUTPUT HELPERS
// =============================================================================

func doRequest(method, path string, body interface{}) (map[string]interface{}, error) {
	var reqBody io.Reader
	var reqJSON []byte

	if body != nil {
		var err error
		reqJSON, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshaling request: %w", err)
		}
		reqBody = bytes.NewReader(reqJSON)
	}

	reqURL := strings.TrimSuffix(shopperURL, "/") + path
	req, err := http.NewRequest(method, reqURL, reqBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if verbose {
		printRequest(method, path, reqJSON)
	}

	start := time.Now()
	resp, err := client.Do(req)
	duration := time.Since(start)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if verbose {
		printResponse(resp.StatusCode, respBody, duration)
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, errorMessage(respBody))
	}

	var result map[string]interface{}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("parsing response: %w", err)
	}
	return result, nil
}

// errorMessage extracts "CODE: message" from an error body, or returns it raw.
func errorMessage(body []byte) string {
	var e struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &e); err != nil || e.Error.Code == "" {
		return strings.TrimSpace(string(body))
	}
	return e.Error.Code + ": " + e.Error.Message
}

// printCart prints a cart response.
func printCart(resp map[string]interface{}, done string) {
	for _, w := range stringList(resp["warnings"]) {
		printWarning("%s", w)
	}

	status, _ := resp["status"].(string)
	if quiet {
		fmt.Println(status)
		return
	}

	printSuccess("%s", done)
	fmt.Printf("  Status: %s%s%s", colorCyan, status, colorReset)
	if id, _ := resp["cartId"].(string); id != "" {
		fmt.Printf("  Cart: %s%s%s", colorCyan, id, colorReset)
	}
	if unconfirmed, _ := resp["queueUnconfirmed"].(bool); unconfirmed {
		fmt.Printf("  %s(pending items not yet confirmed)%s", colorYellow, colorReset)
	}
	fmt.Println()

	lines, _ := resp["lines"].([]interface{})
	if len(lines) == 0 {
		printInfo("Cart is empty")
	}
	for _, l := range lines {
		m, ok := l.(map[string]interface{})
		if !ok {
			continue
		}
		title, _ := m["title"].(string)
		if title == "" {
			title = fmt.Sprintf("product %v", m["productId"])
		}
		fmt.Printf("    %v × %s %s(%v, %v₽)%s\n", m["quantity"], title, colorGray, m["shopName"], m["price"], colorReset)
	}

	if opt, ok := resp["optimization"].(map[string]interface{}); ok {
		fmt.Printf("  %sLast optimization:%s %v\n", colorYellow, colorReset, opt["lines"])
	}
}

func stringList(v interface{}) []string {
	items, _ := v.([]interface{})
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func printRequest(method, path string, body []byte) {
	fmt.Printf("%s→ %s %s%s\n", colorGray, method, path, colorReset)
	if len(body) > 0 {
		printJSON(body, "  ")
	}
}

func printResponse(status int, body []byte, duration time.Duration) {
	color := colorGreen
	if status >= 400 {
		color = colorRed
	}
	fmt.Printf("%s← %d%s %s(%s)%s\n", color, status, colorReset, colorGray, duration.Round(time.Millisecond), colorReset)
	printJSON(body, "  ")
}

func printJSON(data []byte, prefix string) {
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, data, prefix, "  "); err != nil {
		fmt.Printf("%s%s\n", prefix, string(data))
		return
	}
	fmt.Println(prefix + pretty.String())
}

func printSuccess(format string, args ...interface{}) {
	if !quiet {
		fmt.Printf("%s✓ %s%s\n", colorGreen, fmt.Sprintf(format, args...), colorReset)
	}
}

func printWarning(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "%s⚠ %s%s\n", colorYellow, fmt.Sprintf(format, args...), colorReset)
}

func printInfo(format string, args ...interface{}) {
	if !quiet {
		fmt.Printf("%s→ %s%s\n", colorGray, fmt.Sprintf(format, args...), colorReset)
	}
}

func envOr(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "%s✗ %s%s\n", colorRed, fmt.Sprintf(format, args...), colorReset)
	os.Exit(1)
}
