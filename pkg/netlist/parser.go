package netlist

import (
	"bufio"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/edp1096/toy-pv/pkg/device"
)

type AnalysisType int

const (
	AnalysisNone AnalysisType = iota
	AnalysisOP
	AnalysisDC
)

func (a AnalysisType) String() string {
	switch a {
	case AnalysisOP:
		return "op"
	case AnalysisDC:
		return "dc"
	default:
		return "none"
	}
}

var ErrSyntax = errors.New("netlist: syntax error")

// Keys every PV model card must define
var requiredModelParams = []string{"a", "io", "il", "rs", "rsh", "alpha", "voc"}

type NetlistData struct {
	Elements   []Element                     // Cells, strings and arrays in declaration order
	Models     map[string]device.ModelParam  // Model parameters
	Solvers    map[string]map[string]float64 // Solver overrides by level
	Conditions []device.Conditions           // Ambient conditions for the sweep
	Analysis   AnalysisType                  // Analysis type
	OPParam    struct {
		Irradiance  float64
		Temperature float64
		Voltage     float64
	}
	DCParam struct {
		Start     float64
		Stop      float64
		Increment float64
		List      []float64 // Explicit voltages, overrides the range
	}
	Top   string // Element solved by the analysis
	Title string // Circuit title
}

type Element struct {
	Type    string            // X: cell, S: series, P: parallel
	Name    string            // Element name
	Model   string            // Model of a cell
	Members []string          // Members of a series or parallel
	Params  map[string]string // Instance parameters
}

// Suffixes are case-insensitive: M is milli, MEG is mega.
var unitMap = map[string]float64{
	"t":   1e12,  // tera
	"g":   1e9,   // giga
	"meg": 1e6,   // mega
	"k":   1e3,   // kilo
	"m":   1e-3,  // milli
	"u":   1e-6,  // micro
	"n":   1e-9,  // nano
	"p":   1e-12, // pico
	"f":   1e-15, // femto
}

var (
	spaceRe   = regexp.MustCompile(`\s+`)
	valueRe   = regexp.MustCompile(`^([-+]?\d*\.?\d+(?:[eE][-+]?\d+)?)((?i:meg|[tgkmunpf]))?$`)
	commentRe = regexp.MustCompile(`\*.*$`)
)

func Parse(input string) (*NetlistData, error) {
	scanner := bufio.NewScanner(strings.NewReader(input))
	netlistData := &NetlistData{
		Models:  make(map[string]device.ModelParam),
		Solvers: make(map[string]map[string]float64),
	}

	// Title or comment
	if scanner.Scan() {
		netlistData.Title = strings.TrimPrefix(scanner.Text(), "*")
		netlistData.Title = strings.TrimSpace(netlistData.Title)
	}

	var currentLine string
	lineNo := 1
	startNo := 1

	flush := func() error {
		if currentLine == "" {
			return nil
		}
		if err := parseLine(netlistData, currentLine); err != nil {
			return fmt.Errorf("line %d: %w", startNo, err)
		}
		currentLine = ""
		return nil
	}

	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())

		// Comment, full line or trailing
		if idx := strings.Index(line, "*"); idx >= 0 {
			line = strings.TrimSpace(line[:idx])
		}
		if len(line) == 0 {
			continue
		}

		// Line continue
		if strings.HasPrefix(line, "+") {
			if currentLine == "" {
				return nil, fmt.Errorf("line %d: %w: continuation without a line", lineNo, ErrSyntax)
			}
			currentLine += " " + strings.TrimSpace(strings.TrimPrefix(line, "+"))
			continue
		}

		if err := flush(); err != nil {
			return nil, err
		}
		currentLine = line
		startNo = lineNo
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	// Last line
	if err := flush(); err != nil {
		return nil, err
	}

	return netlistData, nil
}

func parseLine(netlistData *NetlistData, line string) error {
	line = spaceRe.ReplaceAllString(line, " ")

	if strings.HasPrefix(line, ".") {
		return parseDotOperator(netlistData, line)
	}

	element, err := parseElement(line)
	if err != nil {
		return err
	}
	netlistData.Elements = append(netlistData.Elements, *element)
	return nil
}

// Parse .model, .solver, .cond, .op, .dc, .top
func parseDotOperator(netlistData *NetlistData, line string) error {
	fields := strings.Fields(line)

	switch strings.ToLower(fields[0]) {
	case ".model":
		return parseModel(netlistData, fields[1:])

	case ".solver":
		if len(fields) < 2 {
			return fmt.Errorf("%w: .solver needs a level", ErrSyntax)
		}
		level := strings.ToLower(fields[1])
		if level != "cell" && level != "series" && level != "parallel" {
			return fmt.Errorf("%w: unknown solver level %s", ErrSyntax, fields[1])
		}
		params, err := parseParams(fields[2:])
		if err != nil {
			return err
		}
		if netlistData.Solvers[level] == nil {
			netlistData.Solvers[level] = make(map[string]float64)
		}
		for k, v := range params {
			netlistData.Solvers[level][k] = v
		}

	case ".cond":
		values, err := parseValues(fields[1:], 2, ".cond needs irradiance and temperature")
		if err != nil {
			return err
		}
		netlistData.Conditions = append(netlistData.Conditions, device.Conditions{
			Irradiance:  values[0],
			Temperature: values[1],
		})

	case ".op":
		values, err := parseValues(fields[1:], 3, ".op needs irradiance, temperature and voltage")
		if err != nil {
			return err
		}
		netlistData.Analysis = AnalysisOP
		netlistData.OPParam.Irradiance = values[0]
		netlistData.OPParam.Temperature = values[1]
		netlistData.OPParam.Voltage = values[2]

	case ".dc":
		netlistData.Analysis = AnalysisDC
		if len(fields) > 1 && strings.ToLower(fields[1]) == "list" {
			if len(fields) < 3 {
				return fmt.Errorf("%w: .dc list needs at least one voltage", ErrSyntax)
			}
			values, err := parseValues(fields[2:], len(fields)-2, "")
			if err != nil {
				return err
			}
			netlistData.DCParam.List = values
			return nil
		}
		values, err := parseValues(fields[1:], 3, ".dc needs start, stop and increment")
		if err != nil {
			return err
		}
		if values[2] <= 0 || values[1] < values[0] {
			return fmt.Errorf("%w: invalid .dc range %g %g %g", ErrSyntax, values[0], values[1], values[2])
		}
		netlistData.DCParam.Start = values[0]
		netlistData.DCParam.Stop = values[1]
		netlistData.DCParam.Increment = values[2]

	case ".top":
		if len(fields) != 2 {
			return fmt.Errorf("%w: .top needs one element name", ErrSyntax)
		}
		netlistData.Top = fields[1]

	case ".end":

	default:
		return fmt.Errorf("%w: unsupported command %s", ErrSyntax, fields[0])
	}

	return nil
}

func parseValues(fields []string, n int, usage string) ([]float64, error) {
	if len(fields) != n {
		return nil, fmt.Errorf("%w: %s", ErrSyntax, usage)
	}
	values := make([]float64, n)
	for i, f := range fields {
		v, err := ParseValue(f)
		if err != nil {
			return nil, err
		}
		values[i] = v
	}
	return values, nil
}

func parseParams(pairs []string) (map[string]float64, error) {
	params := make(map[string]float64)
	for _, pair := range pairs {
		parts := strings.Split(pair, "=")
		if len(parts) != 2 {
			return nil, fmt.Errorf("%w: expected name=value, got %s", ErrSyntax, pair)
		}

		paramName := strings.ToLower(strings.TrimSpace(parts[0]))
		value, err := ParseValue(strings.TrimSpace(parts[1]))
		if err != nil {
			return nil, fmt.Errorf("invalid parameter value %s: %w", pair, err)
		}
		params[paramName] = value
	}
	return params, nil
}

// .model NAME PV(a=1.81 io=8.5e-11 ...)
func parseModel(netlistData *NetlistData, fields []string) error {
	if len(fields) < 2 {
		return fmt.Errorf("%w: insufficient model parameters", ErrSyntax)
	}

	modelName := fields[0]
	rest := strings.Join(fields[1:], " ")

	// Split type and parameter list
	modelType := rest
	paramStr := ""
	if idx := strings.Index(rest, "("); idx >= 0 {
		modelType = rest[:idx]
		paramStr = strings.TrimSuffix(strings.TrimSpace(rest[idx+1:]), ")")
	} else if parts := strings.SplitN(rest, " ", 2); len(parts) == 2 {
		modelType = parts[0]
		paramStr = parts[1]
	}
	modelType = strings.ToUpper(strings.TrimSpace(modelType))
	paramStr = strings.TrimSpace(commentRe.ReplaceAllString(paramStr, ""))

	if modelType != "PV" {
		return fmt.Errorf("%w: unsupported model type: %s", ErrSyntax, modelType)
	}
	if _, exists := netlistData.Models[modelName]; exists {
		return fmt.Errorf("%w: model %s defined twice", ErrSyntax, modelName)
	}

	params, err := parseParams(strings.Fields(paramStr))
	if err != nil {
		return fmt.Errorf("model %s: %w", modelName, err)
	}
	for _, key := range requiredModelParams {
		if _, ok := params[key]; !ok {
			return fmt.Errorf("%w: model %s is missing %s", ErrSyntax, modelName, key)
		}
	}

	netlistData.Models[modelName] = device.ModelParam{
		Type:   modelType,
		Name:   modelName,
		Params: params,
	}

	return nil
}

// Parse circuit element
func parseElement(line string) (*Element, error) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return nil, fmt.Errorf("%w: invalid element format: %s", ErrSyntax, line)
	}

	elem := &Element{
		Name:   fields[0],
		Type:   strings.ToUpper(string(fields[0][0])),
		Params: make(map[string]string),
	}

	switch elem.Type {
	case "X":
		elem.Model = fields[1]
		for _, field := range fields[2:] {
			pair := strings.Split(field, "=")
			if len(pair) != 2 {
				return nil, fmt.Errorf("%w: expected name=value, got %s", ErrSyntax, field)
			}
			elem.Params[strings.ToLower(pair[0])] = pair[1]
		}

	case "S", "P":
		elem.Members = fields[1:]

	default:
		return nil, fmt.Errorf("%w: unsupported element type: %s", ErrSyntax, fields[0])
	}

	return elem, nil
}

// ParseValue - Parse value and factor. 3.8m -> 0.0038
func ParseValue(val string) (float64, error) {
	matches := valueRe.FindStringSubmatch(strings.TrimSpace(val))
	if matches == nil {
		return 0, fmt.Errorf("%w: invalid value format: %s", ErrSyntax, val)
	}

	num, err := strconv.ParseFloat(matches[1], 64)
	if err != nil {
		return 0, err
	}

	// factor
	if matches[2] != "" {
		multiplier, ok := unitMap[strings.ToLower(matches[2])]
		if !ok {
			return 0, fmt.Errorf("%w: unknown unit suffix: %s", ErrSyntax, val)
		}
		num *= multiplier
	}

	return num, nil
}

// Voltages returns the voltages of the .dc analysis.
func (n *NetlistData) Voltages() []float64 {
	if len(n.DCParam.List) > 0 {
		return append([]float64(nil), n.DCParam.List...)
	}
	return SweepVoltages(n.DCParam.Start, n.DCParam.Stop, n.DCParam.Increment)
}

// SweepVoltages returns start..stop by increment, both ends included.
func SweepVoltages(start, stop, increment float64) []float64 {
	if increment <= 0 {
		return nil
	}
	var voltages []float64
	steps := int((stop-start)/increment + 1e-9)
	for k := 0; k <= steps; k++ {
		voltages = append(voltages, start+float64(k)*increment)
	}
	return voltages
}
